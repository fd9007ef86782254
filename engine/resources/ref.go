package resources

import "github.com/spaghettifunk/anima-instancing/engine/core"

// control is the block shared by every handle to the same value.
type control[T any] struct {
	value   *T
	strong  uint64
	destroy func(*T)
}

// Ref is a strong handle to a shared value. The value is destroyed when the
// last Ref to it is released. Refs are not safe for concurrent use.
type Ref[T any] struct {
	ctl      *control[T]
	released bool
}

// Weak observes a shared value without keeping it alive. The zero Weak is
// always expired.
type Weak[T any] struct {
	ctl *control[T]
}

// NewRef takes ownership of value. destroy may be nil and is invoked exactly
// once, when the strong count drops to zero.
func NewRef[T any](value *T, destroy func(*T)) *Ref[T] {
	if value == nil {
		core.Invariantf("resources: NewRef called with a nil value")
	}
	return &Ref[T]{
		ctl: &control[T]{
			value:   value,
			strong:  1,
			destroy: destroy,
		},
	}
}

// Get returns the shared value, or nil once this handle has been released.
func (r *Ref[T]) Get() *T {
	if r == nil || r.released {
		return nil
	}
	return r.ctl.value
}

// Clone returns a new strong handle to the same value.
func (r *Ref[T]) Clone() *Ref[T] {
	if r == nil || r.released {
		core.Invariantf("resources: Clone of a released reference")
	}
	r.ctl.strong++
	return &Ref[T]{ctl: r.ctl}
}

// Release drops this handle's share. Releasing the same handle twice has no
// further effect.
func (r *Ref[T]) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.ctl.strong--
	if r.ctl.strong > 0 {
		return
	}
	value := r.ctl.value
	r.ctl.value = nil
	if r.ctl.destroy != nil {
		r.ctl.destroy(value)
	}
}

// Weak returns a weak handle to the value held by r.
func (r *Ref[T]) Weak() Weak[T] {
	if r == nil || r.released {
		return Weak[T]{}
	}
	return Weak[T]{ctl: r.ctl}
}

// StrongCount is the number of live strong handles, zero if r was released.
func (r *Ref[T]) StrongCount() uint64 {
	if r == nil || r.released {
		return 0
	}
	return r.ctl.strong
}

// Upgrade returns a new strong handle if the value is still alive.
func (w Weak[T]) Upgrade() (*Ref[T], bool) {
	if w.Expired() {
		return nil, false
	}
	w.ctl.strong++
	return &Ref[T]{ctl: w.ctl}, true
}

func (w Weak[T]) Expired() bool {
	return w.ctl == nil || w.ctl.strong == 0
}
