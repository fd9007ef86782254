package containers

import (
	"errors"
	"testing"
)

func TestRingQueueFixed(t *testing.T) {
	rq := NewRingQueue[int](2, false)
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
	if err := rq.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	if err := rq.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if err := rq.Enqueue(3); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if v, _ := rq.Peek(); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if v, _ := rq.Dequeue(); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if err := rq.Enqueue(3); err != nil {
		t.Fatal(err)
	}
	for _, want := range []int{2, 3} {
		if v, _ := rq.Dequeue(); v != want {
			t.Errorf("expected %d, got %d", want, v)
		}
	}
	if !rq.IsEmpty() {
		t.Errorf("expected queue to be empty")
	}
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	rq := NewRingQueue[int](2, true)
	// Wrap the indices before growing.
	rq.Enqueue(0)
	rq.Dequeue()
	for i := 1; i <= 9; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if rq.Len() != 9 {
		t.Fatalf("expected 9 elements, got %d", rq.Len())
	}
	for want := 1; want <= 9; want++ {
		v, err := rq.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if v != want {
			t.Errorf("expected %d, got %d", want, v)
		}
	}
}
