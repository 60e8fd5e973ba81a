package sequence

import (
	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/feedback"
	"github.com/AaronLay10/SentientTrainer/internal/objects"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
)

// ErrNoSteps is returned by Start when the registry is empty.
var ErrNoSteps = steps.ErrNoSteps

type State int

const (
	StateIdle State = iota
	StateActive
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one click.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeAdvanced
	OutcomeCompleted
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Listener observes sequence progress. Calls happen on the goroutine that
// drives the controller.
type Listener interface {
	StepAdvanced(step steps.Step, next int)
	SequenceReset(clickedID string, expected steps.Step)
	SequenceCompleted()
}

// Controller validates clicks against the step registry.
// It is not safe for concurrent use; the session loop serializes every call.
type Controller struct {
	registry *steps.Registry
	scene    *objects.Scene
	feedback *feedback.Engine
	listener Listener

	state State
	index int
	run   int
}

func NewController(registry *steps.Registry, scene *objects.Scene, fb *feedback.Engine) *Controller {
	return &Controller{
		registry: registry,
		scene:    scene,
		feedback: fb,
	}
}

func (c *Controller) SetListener(l Listener) {
	c.listener = l
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) CurrentIndex() int {
	return c.index
}

// CurrentStep is the expected step, false once the sequence is complete.
func (c *Controller) CurrentStep() (steps.Step, bool) {
	return c.registry.At(c.index)
}

// Run counts the attempts started since creation.
func (c *Controller) Run() int {
	return c.run
}

// Start begins a new attempt from the initial scene: every object is reset,
// completed flags are cleared and step 0 is cued.
func (c *Controller) Start() error {
	if err := c.registry.Validate(); err != nil {
		events.Emit("error", "system.error", "cannot start sequence", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	c.feedback.CancelAll()
	c.scene.ResetAll()
	c.registry.Reset()
	c.index = 0
	c.state = StateActive
	c.run++

	events.Emit("info", "sequence.started", "", map[string]interface{}{
		"run":   c.run,
		"steps": c.registry.Len(),
	})

	c.cueCurrent()
	return nil
}

// Stop returns to Idle from any state and clears every cue.
func (c *Controller) Stop() {
	prev := c.state
	c.state = StateIdle
	c.feedback.Clear()

	events.Emit("info", "sequence.stopped", "", map[string]interface{}{
		"run":  c.run,
		"from": prev.String(),
		"step": c.index,
	})
}

// Close ends a completed sequence before its success wave finishes.
// On an active sequence it behaves like Stop.
func (c *Controller) Close() {
	switch c.state {
	case StateCompleted:
		c.feedback.Clear()
		c.toIdle("closed")
	case StateActive:
		c.Stop()
	}
}

// OnObjectClicked validates a click. Only an active sequence reacts.
func (c *Controller) OnObjectClicked(objectID string) Outcome {
	if c.state != StateActive {
		events.Emit("debug", "step.ignored", "", map[string]interface{}{
			"object_id": objectID,
			"reason":    "inactive",
			"state":     c.state.String(),
		})
		return OutcomeIgnored
	}

	expected, ok := c.registry.At(c.index)
	if !ok {
		return OutcomeIgnored
	}

	if objectID == expected.TargetID {
		return c.advance(expected)
	}

	if c.completedEarlier(objectID) {
		events.Emit("debug", "step.ignored", "", map[string]interface{}{
			"object_id": objectID,
			"reason":    "already_completed",
			"step":      c.index,
		})
		return OutcomeIgnored
	}

	return c.reject(objectID, expected)
}

func (c *Controller) completedEarlier(objectID string) bool {
	for i := 0; i < c.index; i++ {
		s, _ := c.registry.At(i)
		if s.TargetID == objectID && s.Completed {
			return true
		}
	}
	return false
}

func (c *Controller) advance(step steps.Step) Outcome {
	c.registry.MarkCompleted(c.index)

	if obj, ok := c.scene.Get(step.TargetID); ok {
		obj.Toggle()
		if hook, ok := obj.(objects.PostValidationHook); ok {
			hook.OnValidated()
		}
	} else {
		events.Emit("warn", "object.misconfigured", "step target is not in the scene", map[string]interface{}{
			"object_id": step.TargetID,
		})
	}

	c.feedback.Play(feedback.CueCorrect)
	c.index++

	events.Emit("info", "step.validated", "", map[string]interface{}{
		"object_id": step.TargetID,
		"step":      step.Index,
		"title":     step.Title,
		"run":       c.run,
	})

	if c.listener != nil {
		c.listener.StepAdvanced(step, c.index)
	}

	if c.index >= c.registry.Len() {
		c.complete()
		return OutcomeCompleted
	}

	c.cueCurrent()
	return OutcomeAdvanced
}

func (c *Controller) complete() {
	c.state = StateCompleted
	c.feedback.CancelAll()
	c.feedback.Play(feedback.CueCompleted)

	events.Emit("info", "sequence.completed", "", map[string]interface{}{
		"run":   c.run,
		"steps": c.registry.Len(),
	})

	run := c.run
	c.feedback.Succeed(c.registry.TargetIDs(), func() {
		if c.state == StateCompleted && c.run == run {
			c.toIdle("wave_finished")
		}
	})

	if c.listener != nil {
		c.listener.SequenceCompleted()
	}
}

// reject resets the attempt at once; the flash runs afterwards and step 0
// is cued again when it ends.
func (c *Controller) reject(objectID string, expected steps.Step) Outcome {
	inSequence := c.registry.Contains(objectID)

	c.feedback.Play(feedback.CueWrong)

	events.Emit("info", "step.rejected", "", map[string]interface{}{
		"object_id":   objectID,
		"expected":    expected.TargetID,
		"step":        c.index,
		"in_sequence": inSequence,
		"run":         c.run,
	})

	c.scene.ResetAll()
	c.registry.Reset()
	c.index = 0

	events.Emit("info", "sequence.reset", "", map[string]interface{}{
		"run": c.run,
	})

	if c.listener != nil {
		c.listener.SequenceReset(objectID, expected)
	}

	run := c.run
	c.feedback.Fail(c.registry.TargetIDs(), !inSequence, func() {
		if c.state == StateActive && c.run == run && c.index == 0 {
			c.cueCurrent()
		}
	})

	return OutcomeReset
}

func (c *Controller) cueCurrent() {
	step, ok := c.registry.At(c.index)
	if !ok {
		return
	}
	c.feedback.Cue(step.TargetID)

	events.Emit("debug", "step.cued", "", map[string]interface{}{
		"object_id": step.TargetID,
		"step":      step.Index,
	})
}

func (c *Controller) toIdle(reason string) {
	c.state = StateIdle
	events.Emit("info", "sequence.idle", "", map[string]interface{}{
		"run":    c.run,
		"reason": reason,
	})
}
