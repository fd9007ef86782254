package renderer

import (
	"github.com/spaghettifunk/anima-instancing/engine/containers"
	"github.com/spaghettifunk/anima-instancing/engine/core"
)

type deferredDeletion struct {
	frame   uint64
	name    string
	destroy func()
}

// DeletionQueue postpones the destruction of GPU resources until every frame
// that could still reference them has completed.
type DeletionQueue struct {
	framesInFlight uint64
	frame          uint64
	pending        *containers.RingQueue[deferredDeletion]
}

func NewDeletionQueue(framesInFlight uint32) *DeletionQueue {
	if framesInFlight == 0 {
		framesInFlight = 1
	}
	return &DeletionQueue{
		framesInFlight: uint64(framesInFlight),
		pending:        containers.NewRingQueue[deferredDeletion](64, true),
	}
}

// Push schedules destroy to run once the frames currently in flight are done.
func (q *DeletionQueue) Push(name string, destroy func()) {
	// A growable queue never rejects writes.
	_ = q.pending.Enqueue(deferredDeletion{
		frame:   q.frame + q.framesInFlight,
		name:    name,
		destroy: destroy,
	})
}

// EndFrame advances the frame counter and runs every deletion now due.
func (q *DeletionQueue) EndFrame() int {
	q.frame++
	ran := 0
	for !q.pending.IsEmpty() {
		next, _ := q.pending.Peek()
		if next.frame > q.frame {
			break
		}
		q.pending.Dequeue()
		core.LogDebug("destroying '%s'", next.name)
		next.destroy()
		ran++
	}
	return ran
}

// Flush runs every pending deletion immediately. Only call once the device is idle.
func (q *DeletionQueue) Flush() int {
	ran := 0
	for !q.pending.IsEmpty() {
		next, _ := q.pending.Dequeue()
		next.destroy()
		ran++
	}
	return ran
}

func (q *DeletionQueue) Len() int {
	return q.pending.Len()
}
