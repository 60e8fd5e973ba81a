package objects

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
)

// Rotary is a two-position object rotating about one axis: the mode
// selector (X axis) and the guard door (Y axis).
type Rotary struct {
	base
}

func NewSelector(id string, initialOn bool, rest animation.Transform, target *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) *Rotary {
	return &Rotary{base: newBase(id, "selector", initialOn, StateOff, StateOn, rest, target, d, sched, sink)}
}

func NewDoor(id string, initialOn bool, rest animation.Transform, target *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) *Rotary {
	return &Rotary{base: newBase(id, "door", initialOn, StateClosed, StateOpen, rest, target, d, sched, sink)}
}

func (r *Rotary) Toggle() bool {
	return r.flip(nil)
}

func (r *Rotary) Reset() {
	if r.restore() {
		r.emitReset()
	}
}

// KeySwitch is the operator key switch. It turns away from its initial
// position in the direction given by that position, and resets its key
// when toggled from the off state.
type KeySwitch struct {
	base
	key Resettable
	dep string
}

func NewKeySwitch(id string, initialOn bool, rest animation.Transform, target *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) *KeySwitch {
	var offset *animation.Transform
	if target != nil {
		o := *target
		if initialOn {
			o.Rotation = o.Rotation.Mul(-1)
		}
		offset = &o
	}
	return &KeySwitch{base: newBase(id, "key_switch", initialOn, StateOff, StateOn, rest, offset, d, sched, sink)}
}

// SetKey wires the key that is reset whenever the switch is toggled from off.
func (k *KeySwitch) SetKey(id string, key Resettable) {
	k.dep = id
	k.key = key
}

func (k *KeySwitch) Dependents() []string {
	if k.dep == "" {
		return nil
	}
	return []string{k.dep}
}

func (k *KeySwitch) Toggle() bool {
	if k.offset != nil && !k.on && k.key != nil {
		k.key.Reset()
	}
	return k.flip(nil)
}

func (k *KeySwitch) Reset() {
	if k.restore() {
		k.emitReset()
	}
}
