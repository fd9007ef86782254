package resources

import (
	"errors"
	"io"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

type payload struct {
	name string
}

func TestRefDestroyOnLastRelease(t *testing.T) {
	destroyed := 0
	r := NewRef(&payload{name: "cube"}, func(p *payload) {
		destroyed++
		if p.name != "cube" {
			t.Errorf("expected cube, got %s", p.name)
		}
	})
	c := r.Clone()
	if r.StrongCount() != 2 {
		t.Fatalf("expected 2 strong refs, got %d", r.StrongCount())
	}
	if r.Get() != c.Get() {
		t.Errorf("expected clones to share the value")
	}

	r.Release()
	r.Release()
	if destroyed != 0 {
		t.Fatalf("expected value alive while a clone exists")
	}
	if r.Get() != nil {
		t.Errorf("expected released ref to return nil")
	}

	c.Release()
	if destroyed != 1 {
		t.Errorf("expected destroy to run once, ran %d times", destroyed)
	}
}

func TestWeakUpgrade(t *testing.T) {
	r := NewRef(&payload{name: "mat"}, nil)
	w := r.Weak()
	if w.Expired() {
		t.Fatalf("expected weak to be live")
	}

	up, ok := w.Upgrade()
	if !ok || up.Get() != r.Get() {
		t.Fatalf("expected upgrade to return the same value")
	}
	r.Release()
	if w.Expired() {
		t.Fatalf("expected upgraded ref to keep the value alive")
	}
	up.Release()

	if !w.Expired() {
		t.Errorf("expected weak to expire after last release")
	}
	if _, ok := w.Upgrade(); ok {
		t.Errorf("expected upgrade of expired weak to fail")
	}
	var zero Weak[payload]
	if !zero.Expired() {
		t.Errorf("expected zero weak to be expired")
	}
}

func TestCloneReleasedPanics(t *testing.T) {
	core.SetLogOutput(io.Discard)
	r := NewRef(&payload{}, nil)
	r.Release()
	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, core.ErrInvariantViolation) {
			t.Errorf("expected invariant violation panic, got %v", rec)
		}
	}()
	r.Clone()
}
