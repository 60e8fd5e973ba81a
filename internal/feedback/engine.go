package feedback

import (
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/config"
)

// Appearance is the abstract visual state requested from the renderer.
type Appearance string

const (
	AppearanceRest      Appearance = "rest"
	AppearanceHighlight Appearance = "highlight"
	AppearanceError     Appearance = "error"
	AppearanceSuccess   Appearance = "success"
	AppearancePressed   Appearance = "pressed"
)

// Cue is an abstract sound.
type Cue string

const (
	CueCorrect   Cue = "correct"
	CueWrong     Cue = "wrong"
	CueCompleted Cue = "completed"
)

// Sink renders feedback commands. Level is the blend towards the
// appearance in [0, 1].
type Sink interface {
	SetAppearance(objectID string, a Appearance, level float64)
	SetOverlay(a Appearance, level float64)
	PlayCue(c Cue)
}

// Scheduler targets owned by the engine.
const (
	TargetCue  = "feedback/cue"
	TargetFail = "feedback/fail"
	TargetWave = "feedback/wave"
)

type Config struct {
	HighlightPeriod time.Duration
	PulseGap        time.Duration
	FlashCount      int
	FlashInterval   time.Duration
	WaveStep        time.Duration
	WaveHold        time.Duration
}

func DefaultConfig() Config {
	return Config{
		HighlightPeriod: time.Second,
		PulseGap:        100 * time.Millisecond,
		FlashCount:      3,
		FlashInterval:   100 * time.Millisecond,
		WaveStep:        150 * time.Millisecond,
		WaveHold:        500 * time.Millisecond,
	}
}

// FromConfig fills unset trainer.yaml values with the defaults.
func FromConfig(c config.FeedbackConfig) Config {
	d := DefaultConfig()
	if c.HighlightPeriod > 0 {
		d.HighlightPeriod = c.HighlightPeriod
	}
	if c.PulseGap > 0 {
		d.PulseGap = c.PulseGap
	}
	if c.FlashCount > 0 {
		d.FlashCount = c.FlashCount
	}
	if c.FlashInterval > 0 {
		d.FlashInterval = c.FlashInterval
	}
	if c.WaveStep > 0 {
		d.WaveStep = c.WaveStep
	}
	if c.WaveHold > 0 {
		d.WaveHold = c.WaveHold
	}
	return d
}

// Engine drives cue, failure and success animations on the scheduler.
type Engine struct {
	cfg     Config
	sched   *animation.Scheduler
	sink    Sink
	cue     string
	touched map[string]bool
}

func NewEngine(cfg Config, sched *animation.Scheduler, sink Sink) *Engine {
	if sink == nil {
		sink = MultiSink{}
	}
	return &Engine{
		cfg:     cfg,
		sched:   sched,
		sink:    sink,
		touched: make(map[string]bool),
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) set(id string, a Appearance, level float64) {
	e.touched[id] = true
	e.sink.SetAppearance(id, a, level)
}

// Cue pulses objectID between rest and highlight until cancelled.
// A new cue replaces the previous one and aborts a running failure flash.
func (e *Engine) Cue(objectID string) {
	e.sched.Cancel(TargetFail)

	half := e.cfg.HighlightPeriod / 2
	e.sched.Start(animation.Transition{
		Target: TargetCue,
		Loop:   true,
		Phases: []animation.Phase{
			{Duration: half, Step: func(t float64) { e.set(objectID, AppearanceHighlight, t) }},
			{Duration: e.cfg.HighlightPeriod - half, Step: func(t float64) { e.set(objectID, AppearanceHighlight, 1-t) }},
			{Duration: e.cfg.PulseGap},
		},
		OnCancel: func() {
			e.set(objectID, AppearanceRest, 0)
			if e.cue == objectID {
				e.cue = ""
			}
		},
	})
	e.cue = objectID
}

// CurrentCue is the object being pulsed, or "" when no cue runs.
func (e *Engine) CurrentCue() string {
	if !e.sched.Active(TargetCue) {
		return ""
	}
	return e.cue
}

// Fail flashes objectIDs, and the full-screen overlay when overlay is set,
// FlashCount times. onDone runs after the last flash unless the flash is
// cancelled first.
func (e *Engine) Fail(objectIDs []string, overlay bool, onDone func()) {
	e.sched.Cancel(TargetCue)

	ids := append([]string(nil), objectIDs...)
	paint := func(a Appearance, level float64) func(float64) {
		return func(float64) {
			for _, id := range ids {
				e.set(id, a, level)
			}
			if overlay {
				e.sink.SetOverlay(a, level)
			}
		}
	}

	var phases []animation.Phase
	for i := 0; i < e.cfg.FlashCount; i++ {
		phases = append(phases,
			animation.Phase{Step: paint(AppearanceError, 1)},
			animation.Phase{Duration: e.cfg.FlashInterval},
			animation.Phase{Step: paint(AppearanceRest, 0)},
			animation.Phase{Duration: e.cfg.FlashInterval},
		)
	}

	e.sched.Start(animation.Transition{
		Target:   TargetFail,
		Phases:   phases,
		OnDone:   onDone,
		OnCancel: func() { paint(AppearanceRest, 0)(1) },
	})
}

// Succeed plays a wave of the success colour across objectIDs, holds it,
// then returns every object to rest and runs onDone.
func (e *Engine) Succeed(objectIDs []string, onDone func()) {
	e.sched.Cancel(TargetCue)
	e.sched.Cancel(TargetFail)

	ids := append([]string(nil), objectIDs...)
	rest := func(float64) {
		for _, id := range ids {
			e.set(id, AppearanceRest, 0)
		}
	}

	var phases []animation.Phase
	for _, id := range ids {
		id := id
		phases = append(phases, animation.Phase{
			Duration: e.cfg.WaveStep,
			Step:     func(t float64) { e.set(id, AppearanceSuccess, t) },
		})
	}
	phases = append(phases,
		animation.Phase{Duration: e.cfg.WaveHold},
		animation.Phase{Step: rest},
	)

	e.sched.Start(animation.Transition{
		Target:   TargetWave,
		Phases:   phases,
		OnDone:   onDone,
		OnCancel: func() { rest(1) },
	})
}

func (e *Engine) Play(c Cue) {
	e.sink.PlayCue(c)
}

// CancelAll stops every feedback animation. Cancel hooks return the
// affected objects to rest; pending completions are dropped.
func (e *Engine) CancelAll() {
	e.sched.CancelPrefix("feedback/")
	e.cue = ""
}

// Clear cancels everything and puts every object the engine touched back to rest.
func (e *Engine) Clear() {
	e.CancelAll()
	for id := range e.touched {
		e.sink.SetAppearance(id, AppearanceRest, 0)
	}
	e.sink.SetOverlay(AppearanceRest, 0)
}
