package objects

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

const defaultBounceDuration = 300 * time.Millisecond

// Handle is the LOTO handle. Pulling it out reveals its padlock with a
// bounce once the slide ends; pushing it back or resetting hides the padlock.
type Handle struct {
	base
	padlock *Padlock
}

func NewHandle(id string, initialOn bool, rest animation.Transform, target *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) *Handle {
	return &Handle{base: newBase(id, "handle", initialOn, StateOff, StateOn, rest, target, d, sched, sink)}
}

func (h *Handle) SetPadlock(p *Padlock) {
	h.padlock = p
}

func (h *Handle) Dependents() []string {
	if h.padlock == nil {
		return nil
	}
	return []string{h.padlock.ID()}
}

func (h *Handle) Toggle() bool {
	if h.offset == nil {
		return h.flip(nil)
	}

	if !h.moved() && h.padlock != nil {
		// The padlock is usable at once; its reveal plays when the slide ends.
		h.padlock.show(h.duration)
	}
	ok := h.flip(nil)
	if !h.moved() && h.padlock != nil {
		h.padlock.Reset()
	}
	return ok
}

func (h *Handle) Reset() {
	changed := h.restore()
	if h.padlock != nil {
		h.padlock.Reset()
	}
	if changed {
		h.emitReset()
	}
}

// Padlock is the lock hung on the pulled handle. Its discrete state is the
// consignation tag: toggling reveals the tag, which requires the padlock to
// be visible.
type Padlock struct {
	id       string
	rest     animation.Transform
	tag      *animation.Transform
	bounce   float64
	duration time.Duration

	visible  bool
	tagShown bool
	current  animation.Transform

	sched *animation.Scheduler
	sink  TransformSink
}

func NewPadlock(id string, rest animation.Transform, tag *animation.Transform, bounce float64, sched *animation.Scheduler, sink TransformSink) *Padlock {
	if sink == nil {
		sink = nopSink{}
	}
	if bounce <= 0 {
		bounce = 1.3
	}
	return &Padlock{
		id:       id,
		rest:     rest,
		tag:      tag,
		bounce:   bounce,
		duration: defaultBounceDuration,
		current:  rest,
		sched:    sched,
		sink:     sink,
	}
}

func (p *Padlock) ID() string   { return p.id }
func (p *Padlock) Kind() string { return "padlock" }

func (p *Padlock) State() State {
	if p.tagShown {
		return StateShown
	}
	return StateHidden
}

func (p *Padlock) InitialState() State { return StateHidden }

func (p *Padlock) Transform() animation.Transform { return p.current }

func (p *Padlock) Visible() bool { return p.visible }

func (p *Padlock) tagKey() string {
	return TargetKey(p.id) + "/tag"
}

// show makes the padlock visible and plays its bounce after delay.
func (p *Padlock) show(delay time.Duration) {
	if p.visible {
		return
	}
	p.visible = true
	p.sink.SetVisible(p.id, true)

	b := animation.Bounce(TargetKey(p.id), p.duration, p.rest, p.bounce, p.apply)
	if delay > 0 {
		b.Phases = append([]animation.Phase{{Duration: delay}}, b.Phases...)
	}
	p.sched.Start(b)
}

func (p *Padlock) apply(t animation.Transform) {
	p.current = t
	p.sink.SetTransform(p.id, t)
}

// Toggle reveals or hides the consignation tag.
func (p *Padlock) Toggle() bool {
	if p.tag == nil {
		events.Emit("warn", "object.misconfigured", "toggle without target transform", map[string]interface{}{
			"object_id": p.id,
			"kind":      p.Kind(),
		})
		return false
	}
	if !p.visible {
		events.Emit("warn", "object.inactive", "padlock is not visible", map[string]interface{}{
			"object_id": p.id,
		})
		return false
	}

	p.tagShown = !p.tagShown
	p.sink.SetVisible(p.id+"/tag", p.tagShown)
	if p.tagShown {
		p.sink.SetTransform(p.id+"/tag", *p.tag)
	} else {
		p.sched.Cancel(p.tagKey())
	}

	events.Emit("info", "object.toggled", "", map[string]interface{}{
		"object_id": p.id,
		"kind":      p.Kind(),
		"state":     string(p.State()),
	})
	return true
}

// OnValidated bounces the revealed tag.
func (p *Padlock) OnValidated() {
	if !p.tagShown || p.tag == nil {
		return
	}
	tagID := p.id + "/tag"
	p.sched.Start(animation.Bounce(p.tagKey(), p.duration, *p.tag, p.bounce, func(t animation.Transform) {
		p.sink.SetTransform(tagID, t)
	}))
}

// Reset hides the padlock and its tag at once.
func (p *Padlock) Reset() {
	cancelled := p.sched.Cancel(TargetKey(p.id))
	if p.sched.Cancel(p.tagKey()) {
		cancelled = true
	}
	if !cancelled && !p.visible && !p.tagShown && p.current == p.rest {
		return
	}

	p.visible = false
	p.tagShown = false
	p.current = p.rest
	p.sink.SetVisible(p.id+"/tag", false)
	p.sink.SetVisible(p.id, false)
	p.sink.SetTransform(p.id, p.rest)

	events.Emit("info", "object.reset", "", map[string]interface{}{
		"object_id": p.id,
		"kind":      p.Kind(),
		"state":     string(p.State()),
	})
}
