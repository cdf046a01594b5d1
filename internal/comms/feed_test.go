package comms

import (
	"testing"
	"time"
)

func TestFeed_PushAndRecent(t *testing.T) {
	f := NewFeed(0)

	for i := 0; i < 5; i++ {
		f.Push(CommsEvent{
			ID:        uuidFor(i),
			Timestamp: time.Now(),
			Kind:      EventAgentMessage,
			Detail:    "msg",
		})
	}

	if f.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", f.Len())
	}

	recent := f.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[1].ID != uuidFor(4) {
		t.Fatalf("last recent id = %q, want %q", recent[1].ID, uuidFor(4))
	}
}

func TestFeed_DedupByID(t *testing.T) {
	f := NewFeed(0)
	e := CommsEvent{ID: "dup-1", Kind: EventTaskPosted}
	f.Push(e)
	f.Push(e)

	if f.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after duplicate push", f.Len())
	}
}

func TestFeed_EvictsOldestPastCapacity(t *testing.T) {
	f := NewFeed(3)
	for i := 0; i < 5; i++ {
		f.Push(CommsEvent{ID: uuidFor(i), Kind: EventAgentSpawned})
	}

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	recent := f.Recent(0)
	if recent[0].ID != uuidFor(2) {
		t.Fatalf("oldest surviving id = %q, want %q", recent[0].ID, uuidFor(2))
	}
	if recent[2].ID != uuidFor(4) {
		t.Fatalf("newest id = %q, want %q", recent[2].ID, uuidFor(4))
	}
}

func uuidFor(i int) string {
	return "evt-" + string(rune('a'+i))
}
