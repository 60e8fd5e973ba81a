package objects

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
)

// Button is the access request button. A press travels in by the target
// offset and springs back; the request stays latched until reset.
type Button struct {
	base
	glow float64
}

func NewButton(id string, rest animation.Transform, target *animation.Transform, d time.Duration, glow float64, sched *animation.Scheduler, sink TransformSink) *Button {
	if glow <= 0 {
		glow = 1.1
	}
	return &Button{
		base: newBase(id, "button", false, StateReleased, StatePressed, rest, target, d, sched, sink),
		glow: glow,
	}
}

func (b *Button) glowKey() string {
	return TargetKey(b.id) + "/glow"
}

func (b *Button) Toggle() bool {
	if b.offset == nil {
		b.warnMisconfigured()
		return false
	}

	b.on = !b.on
	from := b.current
	pressed := b.rest.Offset(*b.offset)
	half := b.duration / 2
	b.sched.Start(animation.Transition{
		Target: TargetKey(b.id),
		Phases: []animation.Phase{
			{Duration: half, Step: func(t float64) { b.apply(animation.LerpTransform(from, pressed, t)) }},
			{Duration: b.duration - half, Step: func(t float64) { b.apply(animation.LerpTransform(pressed, b.rest, t)) }},
		},
	})
	b.emitToggled()
	return true
}

// OnValidated plays a short scale pulse on top of the press.
func (b *Button) OnValidated() {
	b.sched.Start(animation.Bounce(b.glowKey(), defaultBounceDuration, b.rest, b.glow, func(t animation.Transform) {
		cur := b.current
		cur.Scale = t.Scale
		b.apply(cur)
	}))
}

func (b *Button) Reset() {
	glowing := b.sched.Cancel(b.glowKey())
	if b.restore() || glowing {
		b.emitReset()
	}
}
