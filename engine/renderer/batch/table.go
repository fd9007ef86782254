package batch

import (
	"github.com/spaghettifunk/anima-instancing/engine/core"
)

// BatchTable groups render instances by BatchKey. A key maps to a batch only
// while that batch is non-empty. It is not safe for concurrent use.
type BatchTable struct {
	batches   map[BatchKey]*RenderBatch
	instances int
	iterating bool
}

func NewBatchTable() *BatchTable {
	return &BatchTable{
		batches: make(map[BatchKey]*RenderBatch),
	}
}

// AddInstance appends inst to the batch for key, creating the batch if needed.
func (t *BatchTable) AddInstance(key BatchKey, inst *RenderInstance) {
	t.checkMutable("AddInstance")
	if inst == nil {
		core.Invariantf("batch table: AddInstance called with a nil instance")
	}
	if !key.Valid() {
		core.Invariantf("batch table: instance %d added with an incomplete key", inst.id)
	}
	if inst.batch != nil {
		core.Invariantf("batch table: instance %d is already attached to a batch", inst.id)
	}
	if inst.destroyed {
		core.Invariantf("batch table: instance %d was destroyed", inst.id)
	}

	b, ok := t.batches[key]
	if !ok {
		b = &RenderBatch{key: key, table: t}
		t.batches[key] = b
	}
	b.instances = append(b.instances, inst)
	b.gpuData = append(b.gpuData, inst.record())
	inst.batch = b
	inst.index = len(b.instances) - 1
	t.instances++
}

// RemoveInstance detaches inst from its batch using swap-and-pop. It returns
// false if inst was not attached.
func (t *BatchTable) RemoveInstance(inst *RenderInstance) bool {
	t.checkMutable("RemoveInstance")
	if inst == nil || inst.batch == nil {
		return false
	}
	b := inst.batch
	i := inst.index
	if b.table != t || t.batches[b.key] != b {
		core.Invariantf("batch table: instance %d belongs to a batch of another table", inst.id)
	}
	if i < 0 || i >= len(b.instances) || b.instances[i] != inst {
		core.Invariantf("batch table: instance %d has a stale index %d (batch size %d)", inst.id, i, len(b.instances))
	}

	last := len(b.instances) - 1
	if i != last {
		moved := b.instances[last]
		b.instances[i] = moved
		b.gpuData[i] = b.gpuData[last]
		moved.index = i
	}
	b.instances[last] = nil
	b.instances = b.instances[:last]
	b.gpuData = b.gpuData[:last]

	inst.batch = nil
	inst.index = -1
	t.instances--

	if len(b.instances) == 0 {
		delete(t.batches, b.key)
		b.table = nil
	}
	return true
}

// MoveInstance reassigns inst to the batch for newKey. It returns false, and
// changes nothing, if inst was not attached.
func (t *BatchTable) MoveInstance(newKey BatchKey, inst *RenderInstance) bool {
	t.checkMutable("MoveInstance")
	if inst == nil || inst.batch == nil {
		return false
	}
	if !newKey.Valid() {
		core.Invariantf("batch table: instance %d moved to an incomplete key", inst.id)
	}
	t.RemoveInstance(inst)
	t.AddInstance(newKey, inst)
	return true
}

// ForEachBatch calls visit once per non-empty batch, in no particular order.
// The table must not be mutated from within visit.
func (t *BatchTable) ForEachBatch(visit func(b *RenderBatch)) {
	if t.iterating {
		core.Invariantf("batch table: nested ForEachBatch")
	}
	t.iterating = true
	defer func() { t.iterating = false }()

	for _, b := range t.batches {
		visit(b)
	}
}

func (t *BatchTable) Batch(key BatchKey) (*RenderBatch, bool) {
	b, ok := t.batches[key]
	return b, ok
}

func (t *BatchTable) BatchCount() int {
	return len(t.batches)
}

func (t *BatchTable) InstanceCount() int {
	return t.instances
}

// Clear detaches every instance and drops all batches.
func (t *BatchTable) Clear() {
	t.checkMutable("Clear")
	for key, b := range t.batches {
		for _, inst := range b.instances {
			inst.batch = nil
			inst.index = -1
		}
		b.instances = nil
		b.gpuData = nil
		b.table = nil
		delete(t.batches, key)
	}
	t.instances = 0
}

func (t *BatchTable) checkMutable(op string) {
	if t.iterating {
		core.Invariantf("batch table: %s called during ForEachBatch", op)
	}
}
