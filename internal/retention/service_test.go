package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/session"
	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
)

var sweepNow = time.Unix(1760000000, 0).UTC()

func TestRunOnceDeletesExpiredArtifacts(t *testing.T) {
	store := newFakeStore(
		object("results_1.csv", 10, sweepNow.Add(-3*time.Hour)),
		object("results_2.csv", 20, sweepNow.Add(-90*time.Minute)),
		object("results_3.csv", 30, sweepNow.Add(-time.Minute)),
		object("results_notes.txt", 5, sweepNow.Add(-10*time.Hour)),
	)
	svc := &Service{
		Stores: []storage.ObjectStore{store},
		Config: Config{MaxAge: time.Hour},
		Clock:  func() time.Time { return sweepNow },
	}
	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.FilesScanned != 3 || summary.ExpiredDeleted != 2 || summary.BytesFreed != 30 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := store.keys(); strings.Join(got, ",") != "results_3.csv,results_notes.txt" {
		t.Fatalf("remaining = %v", got)
	}
}

func TestRunOnceTrimsToMaxFilesOldestFirst(t *testing.T) {
	objects := make([]storage.ObjectInfo, 0, 5)
	for i := 0; i < 5; i++ {
		objects = append(objects, object(fmt.Sprintf("results_%d.csv", 100+i), 1, sweepNow.Add(time.Duration(i)*time.Second)))
	}
	store := newFakeStore(objects...)
	svc := &Service{
		Stores: []storage.ObjectStore{store},
		Config: Config{MaxFiles: 2},
		Clock:  func() time.Time { return sweepNow },
	}
	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.OverflowDeleted != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := store.keys(); strings.Join(got, ",") != "results_103.csv,results_104.csv" {
		t.Fatalf("remaining = %v", got)
	}
}

func TestRunOnceSweepsEveryStoreAndSessions(t *testing.T) {
	scratch := newFakeStore(object("results_1.csv", 1, sweepNow.Add(-2*time.Hour)))
	mirror := newFakeStore(object("results_2.csv", 1, sweepNow.Add(-2*time.Hour)))

	sessions := session.NewStore(0)
	clock := sweepNow.Add(-48 * time.Hour)
	sessions.Clock = func() time.Time { return clock }
	sessions.Append("stale", session.Turn{Question: "q"})
	clock = sweepNow
	sessions.Append("active", session.Turn{Question: "q"})

	svc := &Service{
		Stores:   []storage.ObjectStore{scratch, nil, mirror},
		Sessions: sessions,
		Config:   Config{MaxAge: time.Hour, SessionIdleTTL: 24 * time.Hour},
		Clock:    func() time.Time { return sweepNow },
	}
	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.StoresScanned != 2 || summary.ExpiredDeleted != 2 || summary.SessionsEvicted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if sessions.Len() != 1 || len(sessions.Get("active")) != 1 {
		t.Fatalf("sessions left = %d", sessions.Len())
	}
}

func TestRunOnceReportsFailuresAndContinues(t *testing.T) {
	broken := newFakeStore()
	broken.listErr = errors.New("listing denied")
	flaky := newFakeStore(
		object("results_1.csv", 1, sweepNow.Add(-2*time.Hour)),
		object("results_2.csv", 1, sweepNow.Add(-2*time.Hour)),
	)
	flaky.deleteErr = map[string]error{"results_1.csv": errors.New("busy")}

	before := testutil.ToFloat64(sweepRunsTotal.WithLabelValues("failed"))
	svc := &Service{
		Stores: []storage.ObjectStore{broken, flaky},
		Config: Config{MaxAge: time.Hour},
		Clock:  func() time.Time { return sweepNow },
	}
	summary, err := svc.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() expected error")
	}
	if !strings.Contains(err.Error(), "2 failure(s)") {
		t.Fatalf("error = %v", err)
	}
	if summary.Failures != 2 || summary.ExpiredDeleted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := testutil.ToFloat64(sweepRunsTotal.WithLabelValues("failed")) - before; got != 1 {
		t.Fatalf("failed sweeps delta = %v", got)
	}
}

func TestRunOnceWithNothingConfiguredKeepsEverything(t *testing.T) {
	store := newFakeStore(object("results_1.csv", 1, sweepNow.Add(-1000*time.Hour)))
	svc := &Service{Stores: []storage.ObjectStore{store}}
	summary, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.FilesScanned != 1 || len(store.keys()) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Stores: []storage.ObjectStore{store}, Config: Config{Interval: time.Millisecond}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if store.listCalls() == 0 {
		t.Fatal("Run() never swept")
	}
}

func TestRunAndRunOnceShareServiceSafely(t *testing.T) {
	store := newFakeStore(object("results_1.csv", 10, time.Now().Add(-time.Hour)))
	svc := &Service{Stores: []storage.ObjectStore{store}, Config: Config{MaxAge: time.Minute}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var wg sync.WaitGroup
	deleted := make(chan int, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := svc.RunOnce(context.Background())
			if err != nil {
				t.Errorf("RunOnce() error = %v", err)
			}
			deleted <- summary.ExpiredDeleted
		}()
	}
	wg.Wait()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(deleted)

	total := 0
	for n := range deleted {
		total += n
	}
	if total != 1 {
		t.Fatalf("expired deleted across sweeps = %d, want 1", total)
	}
	if svc.Config.Interval != 0 || svc.Clock != nil {
		t.Fatalf("sweeps mutated service config: interval=%v clock set=%v", svc.Config.Interval, svc.Clock != nil)
	}
}

func object(key string, size int64, modified time.Time) storage.ObjectInfo {
	return storage.ObjectInfo{Key: key, Size: size, LastModified: modified}
}
