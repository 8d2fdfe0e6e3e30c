package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/storage"
)

func TestPutUsesPrefixAndArtifactHeaders(t *testing.T) {
	fake := &fakeAPI{}
	store, err := newStore("bucket-a", "/nl2sql/prod/", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "results_1760000000.csv", bytes.NewBufferString("a,b\n"), 4, storage.ArtifactPutOptions("results_1760000000.csv"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastUpload.key != "nl2sql/prod/results_1760000000.csv" {
		t.Fatalf("key = %q", fake.lastUpload.key)
	}
	if fake.lastUpload.contentType != "text/csv" {
		t.Fatalf("content type = %q", fake.lastUpload.contentType)
	}
	if fake.lastUpload.disposition != `attachment; filename="results_1760000000.csv"` {
		t.Fatalf("disposition = %q", fake.lastUpload.disposition)
	}
	if info.Key != "results_1760000000.csv" {
		t.Fatalf("info.Key = %q", info.Key)
	}
}

func TestKeysAreFlat(t *testing.T) {
	fake := &fakeAPI{}
	store, err := newStore("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	for _, key := range []string{"", "..", "../secrets.txt", "nested/results_1.csv", `a\b`} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected error", key)
		}
		if _, err := store.Get(context.Background(), key); !errors.Is(err, storage.ErrObjectNotFound) {
			t.Fatalf("Get(%q) error = %v, want ErrObjectNotFound", key, err)
		}
	}
	if fake.puts != 0 {
		t.Fatalf("puts = %d", fake.puts)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeAPI{bucketExists: false}
	store, err := newStore("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeBucket != "bucket-a" || fake.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket(%q, %q)", fake.madeBucket, fake.madeRegion)
	}
}

func TestHealthCheck(t *testing.T) {
	store, err := newStore("bucket-a", "", &fakeAPI{bucketExists: true})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	missing, _ := newStore("bucket-a", "", &fakeAPI{bucketExists: false})
	if err := missing.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for missing bucket")
	}

	down, _ := newStore("bucket-a", "", &fakeAPI{existsErr: errors.New("connection refused")})
	if err := down.HealthCheck(context.Background()); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	store, err := newStore("bucket-a", "", &fakeAPI{removeErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if err := store.Delete(context.Background(), "results_1.csv"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestGetAndStatMapNotFound(t *testing.T) {
	store, err := newStore("bucket-a", "", &fakeAPI{getErr: storage.ErrObjectNotFound, statErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "results_1.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := store.Stat(context.Background(), "results_1.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestStatReportsRelativeKey(t *testing.T) {
	store, err := newStore("bucket-a", "exports", &fakeAPI{})
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	info, err := store.Stat(context.Background(), "results_1.csv")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Key != "results_1.csv" || info.Size != 10 {
		t.Fatalf("Stat() = %+v", info)
	}
}

func TestListStripsPrefixSkipsNestedAndSortsOldestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeAPI{listed: []storage.ObjectInfo{
		{Key: "nl2sql/results_2.csv", LastModified: base.Add(time.Minute)},
		{Key: "nl2sql/results_1.csv", LastModified: base},
		{Key: "nl2sql/results_archive/results_0.csv", LastModified: base.Add(-time.Hour)},
	}}
	store, err := newStore("bucket-a", "/nl2sql/", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	objects, err := store.List(context.Background(), storage.ArtifactPrefix)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "nl2sql/results_" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "results_1.csv" || objects[1].Key != "results_2.csv" {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{"https://minio.example.com", false, "minio.example.com", true},
		{"http://localhost:9000", false, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
	}
	for _, tc := range cases {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if endpoint != tc.endpoint || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, endpoint, secure)
		}
	}
	if _, _, err := parseEndpoint("ftp://minio", false); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestNewStoreRequiresBucket(t *testing.T) {
	if _, err := newStore(" ", "", &fakeAPI{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := newStore("bucket-a", "", nil); err == nil {
		t.Fatal("expected error")
	}
}

type fakeAPI struct {
	lastBucket     string
	lastUpload     upload
	lastListPrefix string
	puts           int
	listed         []storage.ObjectInfo
	bucketExists   bool
	existsErr      error
	madeBucket     string
	madeRegion     string
	removeErr      error
	getErr         error
	statErr        error
}

func (f *fakeAPI) PutObject(_ context.Context, bucket string, u upload) (storage.ObjectInfo, error) {
	f.puts++
	f.lastBucket = bucket
	f.lastUpload = u
	_, _ = io.Copy(io.Discard, u.body)
	return storage.ObjectInfo{Key: u.key, Size: u.size, ETag: "etag-1"}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeAPI) StatObject(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeAPI) RemoveObject(_ context.Context, _, _ string) error {
	return f.removeErr
}

func (f *fakeAPI) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	return append([]storage.ObjectInfo(nil), f.listed...), nil
}

func (f *fakeAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.existsErr
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket, region string) error {
	f.madeBucket = bucket
	f.madeRegion = region
	return nil
}
