package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "session-42", "Nullable"} {
		if err := ValidateID(id); err != nil {
			t.Fatalf("ValidateID(%q) error = %v", id, err)
		}
	}
	for _, id := range []string{"", "   ", "null", "NULL", "undefined", "None", "nil"} {
		if err := ValidateID(id); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("ValidateID(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestGetUnknownSessionReturnsEmpty(t *testing.T) {
	store := NewStore(0)
	turns := store.Get("missing")
	if turns == nil || len(turns) != 0 {
		t.Fatalf("Get() = %#v, want empty slice", turns)
	}
}

func TestAppendKeepsArrivalOrderAndIsolation(t *testing.T) {
	store := NewStore(0)
	store.Append("a", Turn{Question: "q1", SQL: "SELECT 1", Outcome: OutcomeOK})
	store.Append("b", Turn{Question: "other", Outcome: OutcomeFailed})
	store.Append("a", Turn{Question: "q2", SQL: "DELETE FROM t", Outcome: OutcomeRejected})

	got := store.Get("a")
	if len(got) != 2 || got[0].Question != "q1" || got[1].Question != "q2" {
		t.Fatalf("Get(a) = %#v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped on append")
	}
	if other := store.Get("b"); len(other) != 1 || other[0].Question != "other" {
		t.Fatalf("Get(b) = %#v", other)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore(0)
	store.Append("a", Turn{Question: "q1"})
	got := store.Get("a")
	got[0].Question = "mutated"
	if store.Get("a")[0].Question != "q1" {
		t.Fatal("mutating Get() result changed the stored log")
	}
}

func TestMaxTurnsDropsOldest(t *testing.T) {
	store := NewStore(3)
	for i := 0; i < 5; i++ {
		store.Append("a", Turn{Question: fmt.Sprintf("q%d", i)})
	}
	got := store.Get("a")
	if len(got) != 3 {
		t.Fatalf("len(Get()) = %d, want 3", len(got))
	}
	if got[0].Question != "q2" || got[2].Question != "q4" {
		t.Fatalf("Get() = %#v", got)
	}
}

func TestConcurrentAppendsToSameSession(t *testing.T) {
	const n = 200
	store := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Append("shared", Turn{Question: fmt.Sprintf("q%d", i)})
		}(i)
	}
	wg.Wait()
	got := store.Get("shared")
	if len(got) != n {
		t.Fatalf("len(Get()) = %d, want %d", len(got), n)
	}
	seen := make(map[string]bool, n)
	for _, turn := range got {
		seen[turn.Question] = true
	}
	if len(seen) != n {
		t.Fatalf("distinct turns = %d, want %d", len(seen), n)
	}
}

func TestEvictIdle(t *testing.T) {
	now := time.Unix(1760000000, 0)
	store := NewStore(0)
	store.Clock = func() time.Time { return now }
	store.Append("old", Turn{Question: "q"})
	now = now.Add(2 * time.Hour)
	store.Append("fresh", Turn{Question: "q"})

	removed := store.EvictIdle(now.Add(-time.Hour))
	if removed != 1 {
		t.Fatalf("EvictIdle() = %d, want 1", removed)
	}
	if len(store.Get("old")) != 0 {
		t.Fatal("old session should be evicted")
	}
	if len(store.Get("fresh")) != 1 {
		t.Fatal("fresh session should survive")
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
}

func TestEvictIdleDoesNotLoseConcurrentAppends(t *testing.T) {
	const n = 100
	store := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Append("s", Turn{Question: fmt.Sprintf("q%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			store.EvictIdle(time.Time{})
		}()
	}
	wg.Wait()
	// a zero cutoff never evicts anything
	if got := len(store.Get("s")); got != n {
		t.Fatalf("len(Get()) = %d, want %d", got, n)
	}
}
