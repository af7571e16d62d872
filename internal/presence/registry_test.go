package presence

import (
	"testing"
	"time"
)

func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestRegistryAssignsSequentialIDs(t *testing.T) {
	registry := NewRegistry()
	for want := 1; want <= 5; want++ {
		record := registry.Add(tokenFor(want))
		if record.ID != want {
			t.Fatalf("expected id %d, got %d", want, record.ID)
		}
	}
	if registry.Count() != 5 {
		t.Fatalf("expected count 5, got %d", registry.Count())
	}
	if registry.NextID() != 6 {
		t.Fatalf("expected next id 6, got %d", registry.NextID())
	}
}

func TestRegistryAddSameTokenKeepsRecord(t *testing.T) {
	registry := NewRegistry()
	first := registry.Add("a")
	again := registry.Add("a")
	if first != again {
		t.Fatalf("expected same record, got %+v and %+v", first, again)
	}
	if registry.Count() != 1 || registry.NextID() != 2 {
		t.Fatalf("duplicate add changed state: count=%d next=%d", registry.Count(), registry.NextID())
	}
}

func TestRegistryRemove(t *testing.T) {
	registry := NewRegistry()
	registry.Add("a")
	b := registry.Add("b")

	removed, ok := registry.Remove("b")
	if !ok || removed != b {
		t.Fatalf("unexpected remove result: %+v ok=%v", removed, ok)
	}
	if _, ok := registry.Remove("b"); ok {
		t.Fatalf("expected second remove to report not found")
	}
	if _, ok := registry.Remove("unknown"); ok {
		t.Fatalf("expected unknown token to report not found")
	}
	if registry.Count() != 1 {
		t.Fatalf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistryListSortedWithoutTokens(t *testing.T) {
	start := time.Date(2025, 5, 9, 10, 0, 0, 0, time.UTC)
	registry := NewRegistry(WithClock(fixedClock(start)))
	registry.Add("a")
	registry.Add("b")
	registry.Add("c")
	registry.Remove("a")
	registry.Add("d")

	roster := registry.List()
	wantIDs := []int{2, 3, 4}
	if len(roster) != len(wantIDs) {
		t.Fatalf("expected %d entries, got %+v", len(wantIDs), roster)
	}
	for i, entry := range roster {
		if entry.ID != wantIDs[i] {
			t.Fatalf("entry %d: expected id %d, got %d", i, wantIDs[i], entry.ID)
		}
		if !entry.ConnectionTime.After(start) {
			t.Fatalf("entry %d: connection time not set: %v", i, entry.ConnectionTime)
		}
	}
}

func TestRegistryResetIDSequence(t *testing.T) {
	registry := NewRegistry()
	registry.Add("a")
	registry.Add("b")
	registry.ResetIDSequence()
	if registry.Count() != 2 {
		t.Fatalf("reset must not drop records, count=%d", registry.Count())
	}
	if registry.NextID() != 1 {
		t.Fatalf("expected next id 1, got %d", registry.NextID())
	}
}

func tokenFor(n int) string {
	return string(rune('a' + n - 1))
}
