package collector

import (
	"testing"

	"logflow/pkg/logmodel"
)

func TestQueue_PushAndPopUpTo(t *testing.T) {
	q := newQueue()
	for i := 0; i < 5; i++ {
		q.Push(logmodel.LogEntry{Content: []byte{byte(i)}})
	}

	if q.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", q.Size())
	}

	batch := q.PopUpTo(3)
	if len(batch) != 3 {
		t.Fatalf("PopUpTo(3) returned %d entries, want 3", len(batch))
	}
	for i, e := range batch {
		if e.Content[0] != byte(i) {
			t.Errorf("batch[%d] = %v, want %v", i, e.Content, []byte{byte(i)})
		}
	}

	if q.Size() != 2 {
		t.Fatalf("Size() after pop = %d, want 2", q.Size())
	}
}

func TestQueue_PopUpToMoreThanAvailable(t *testing.T) {
	q := newQueue()
	q.Push(logmodel.LogEntry{})
	q.Push(logmodel.LogEntry{})

	batch := q.PopUpTo(10)
	if len(batch) != 2 {
		t.Fatalf("PopUpTo(10) returned %d, want 2", len(batch))
	}
	if q.Size() != 0 {
		t.Fatalf("Size() after drain = %d, want 0", q.Size())
	}
}

func TestQueue_PopUpToEmpty(t *testing.T) {
	q := newQueue()
	if batch := q.PopUpTo(5); batch != nil {
		t.Errorf("expected nil from empty queue, got %v", batch)
	}
}
