package objects

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

// State is the discrete logical position of an object.
type State string

const (
	StateOff      State = "off"
	StateOn       State = "on"
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateInserted State = "inserted"
	StateRemoved  State = "removed"
	StateHidden   State = "hidden"
	StateShown    State = "shown"
	StateReleased State = "released"
	StatePressed  State = "pressed"
)

type Toggleable interface {
	Toggle() bool
}

type Resettable interface {
	Reset()
}

// PostValidationHook is implemented by kinds that play a secondary
// interaction once their step has been validated.
type PostValidationHook interface {
	OnValidated()
}

// Dependent is implemented by kinds that reset another object when they deactivate.
type Dependent interface {
	Dependents() []string
}

// Object is an interactive scene entity addressed by a stable id.
type Object interface {
	Toggleable
	ID() string
	Kind() string
	State() State
	InitialState() State
	Transform() animation.Transform
}

// TransformSink receives every animated transform and visibility change.
type TransformSink interface {
	SetTransform(id string, t animation.Transform)
	SetVisible(id string, visible bool)
}

type nopSink struct{}

func (nopSink) SetTransform(string, animation.Transform) {}
func (nopSink) SetVisible(string, bool)                  {}

// TargetKey is the scheduler key animating the given object.
func TargetKey(id string) string {
	return "object/" + id
}

// base holds the two-position machinery shared by every kind.
// on is the logical state; moved reports whether it differs from the initial one.
type base struct {
	id        string
	kind      string
	initialOn bool
	on        bool
	offState  State
	onState   State

	rest     animation.Transform
	offset   *animation.Transform
	duration time.Duration
	current  animation.Transform

	sched *animation.Scheduler
	sink  TransformSink

	// applied runs after every transform update.
	applied func()
}

func newBase(id, kind string, initialOn bool, offState, onState State, rest animation.Transform, offset *animation.Transform, d time.Duration, sched *animation.Scheduler, sink TransformSink) base {
	if sink == nil {
		sink = nopSink{}
	}
	return base{
		id:        id,
		kind:      kind,
		initialOn: initialOn,
		on:        initialOn,
		offState:  offState,
		onState:   onState,
		rest:      rest,
		offset:    offset,
		duration:  d,
		current:   rest,
		sched:     sched,
		sink:      sink,
	}
}

func (b *base) ID() string   { return b.id }
func (b *base) Kind() string { return b.kind }

func (b *base) State() State {
	return b.stateFor(b.on)
}

func (b *base) InitialState() State {
	return b.stateFor(b.initialOn)
}

func (b *base) Transform() animation.Transform {
	return b.current
}

func (b *base) stateFor(on bool) State {
	if on {
		return b.onState
	}
	return b.offState
}

func (b *base) moved() bool {
	return b.on != b.initialOn
}

// destination is the transform matching the current logical state.
func (b *base) destination() animation.Transform {
	if !b.moved() {
		return b.rest
	}
	return b.rest.Offset(*b.offset)
}

// flip toggles the logical state and animates towards the new destination.
// onArrive runs once the transform has reached it.
func (b *base) flip(onArrive func()) bool {
	if b.offset == nil {
		b.warnMisconfigured()
		return false
	}

	b.on = !b.on
	b.animateTo(b.destination(), b.duration, onArrive)
	b.emitToggled()
	return true
}

func (b *base) emitToggled() {
	events.Emit("info", "object.toggled", "", map[string]interface{}{
		"object_id": b.id,
		"kind":      b.kind,
		"state":     string(b.State()),
	})
}

func (b *base) warnMisconfigured() {
	events.Emit("warn", "object.misconfigured", "toggle without target transform", map[string]interface{}{
		"object_id": b.id,
		"kind":      b.kind,
	})
}

func (b *base) animateTo(dst animation.Transform, d time.Duration, onArrive func()) {
	tr := animation.Tween(TargetKey(b.id), d, b.current, dst, b.apply)
	tr.OnDone = onArrive
	b.sched.Start(tr)
}

func (b *base) apply(t animation.Transform) {
	b.current = t
	b.sink.SetTransform(b.id, t)
	if b.applied != nil {
		b.applied()
	}
}

// restore cancels any transition and snaps back to the construction-time state.
// It reports whether anything changed.
func (b *base) restore() bool {
	cancelled := b.sched.Cancel(TargetKey(b.id))
	changed := cancelled || b.moved() || b.current != b.rest
	b.on = b.initialOn
	if b.current != b.rest {
		b.apply(b.rest)
	}
	return changed
}

func (b *base) emitReset() {
	events.Emit("info", "object.reset", "", map[string]interface{}{
		"object_id": b.id,
		"kind":      b.kind,
		"state":     string(b.State()),
	})
}
