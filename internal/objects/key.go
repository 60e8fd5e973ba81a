package objects

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
)

// keyVisibleRadius is how far from its slot the key is still drawn.
const keyVisibleRadius = 0.1

// Key is the removable access key. Removing slides it out by the target
// offset; reset slides it back instead of snapping. The key is only drawn
// while it sits within keyVisibleRadius of its slot.
type Key struct {
	base
	returning bool
	visible   bool
}

func NewKey(id string, rest animation.Transform, target *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) *Key {
	k := &Key{
		base:    newBase(id, "key", false, StateInserted, StateRemoved, rest, target, d, sched, sink),
		visible: true,
	}
	k.applied = k.updateVisibility
	return k
}

func (k *Key) updateVisibility() {
	near := k.current.Position.Sub(k.rest.Position).Length() <= keyVisibleRadius
	if near == k.visible {
		return
	}
	k.visible = near
	k.sink.SetVisible(k.id, near)
}

// Visible reports whether the key is drawn.
func (k *Key) Visible() bool {
	return k.visible
}

func (k *Key) Toggle() bool {
	k.returning = false
	return k.flip(nil)
}

// Reset puts the key back in its initial state at once and animates the
// transform home. Calling it again while it slides back changes nothing.
func (k *Key) Reset() {
	if k.returning {
		return
	}

	changed := k.moved()
	k.on = k.initialOn

	if k.current != k.rest || k.sched.Active(TargetKey(k.id)) {
		k.returning = true
		tr := animation.Tween(TargetKey(k.id), k.duration, k.current, k.rest, k.apply)
		tr.OnDone = func() { k.returning = false }
		tr.OnCancel = func() { k.returning = false }
		k.sched.Start(tr)
		changed = true
	}

	if changed {
		k.emitReset()
	}
}

// Returning reports whether the key is sliding back after a reset.
func (k *Key) Returning() bool {
	return k.returning
}
