package feedback

import (
	"testing"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

const frame = 50 * time.Millisecond

func run(s *animation.Scheduler, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		s.Tick(frame)
	}
}

func newEngine() (*Engine, *animation.Scheduler, *Recorder) {
	sched := animation.NewScheduler()
	rec := NewRecorder()
	return NewEngine(DefaultConfig(), sched, rec), sched, rec
}

func TestCuePulsesUntilCancelled(t *testing.T) {
	e, sched, rec := newEngine()

	e.Cue("commutateur")
	run(sched, 500*time.Millisecond)

	if e.CurrentCue() != "commutateur" {
		t.Errorf("current cue = %q", e.CurrentCue())
	}
	if rec.Appearance("commutateur") != AppearanceHighlight {
		t.Errorf("expected highlight, got %s", rec.Appearance("commutateur"))
	}

	// Two full periods later the pulse is still running.
	run(sched, 2200*time.Millisecond)
	if !sched.Active(TargetCue) {
		t.Fatal("cue should loop")
	}

	e.CancelAll()
	if e.CurrentCue() != "" {
		t.Error("cue should be cleared")
	}
	if rec.Appearance("commutateur") != AppearanceRest {
		t.Error("cancelled cue should return the object to rest")
	}
}

func TestNewCueReplacesPrevious(t *testing.T) {
	e, sched, rec := newEngine()

	e.Cue("commutateur")
	run(sched, 200*time.Millisecond)
	e.Cue("demande-d-acces")

	if e.CurrentCue() != "demande-d-acces" {
		t.Errorf("current cue = %q", e.CurrentCue())
	}
	if rec.Appearance("commutateur") != AppearanceRest {
		t.Error("previous cue target should be back at rest")
	}
	if sched.Len() != 1 {
		t.Errorf("expected a single cue transition, got %d", sched.Len())
	}

	e.Cue("demande-d-acces")
	if e.CurrentCue() != "demande-d-acces" {
		t.Error("re-cueing the same object should keep it cued")
	}
}

func TestFailFlashesThenCallsBack(t *testing.T) {
	e, sched, rec := newEngine()
	e.Cue("poignee")

	done := 0
	e.Fail([]string{"poignee"}, false, func() { done++ })

	if sched.Active(TargetCue) {
		t.Error("failure should cancel the cue")
	}

	run(sched, 300*time.Millisecond)
	if done != 0 {
		t.Fatal("callback ran before the flashes ended")
	}

	run(sched, 400*time.Millisecond)
	if done != 1 {
		t.Fatalf("expected callback once, got %d", done)
	}

	flashes := 0
	for _, c := range rec.Commands() {
		if c.Kind == "appearance" && c.Appearance == AppearanceError {
			flashes++
		}
	}
	if flashes != 3 {
		t.Errorf("expected 3 flashes, got %d", flashes)
	}
	if rec.Appearance("poignee") != AppearanceRest {
		t.Error("object should end at rest")
	}
	if rec.Overlay() != AppearanceRest {
		t.Error("single-object failure must not touch the overlay")
	}
}

func TestFailWithOverlay(t *testing.T) {
	e, sched, rec := newEngine()

	e.Fail([]string{"a", "b"}, true, nil)
	sched.Tick(frame)

	if rec.Overlay() != AppearanceError {
		t.Errorf("overlay = %s", rec.Overlay())
	}
	if rec.Appearance("a") != AppearanceError || rec.Appearance("b") != AppearanceError {
		t.Error("all objects should flash")
	}

	run(sched, time.Second)
	if rec.Overlay() != AppearanceRest {
		t.Error("overlay should end at rest")
	}
}

func TestCueAbortsFail(t *testing.T) {
	e, sched, rec := newEngine()

	called := false
	e.Fail([]string{"a"}, true, func() { called = true })
	sched.Tick(frame)
	e.Cue("b")

	run(sched, time.Second)
	if called {
		t.Error("aborted failure must not run its continuation")
	}
	if rec.Overlay() != AppearanceRest || rec.Appearance("a") != AppearanceRest {
		t.Error("aborted failure should restore rest")
	}
}

func TestSucceedWave(t *testing.T) {
	e, sched, rec := newEngine()
	ids := []string{"a", "b", "c"}

	done := false
	e.Succeed(ids, func() { done = true })

	run(sched, 150*time.Millisecond)
	if !rec.Saw("a", AppearanceSuccess) || rec.Saw("c", AppearanceSuccess) {
		t.Error("wave should reach a before c")
	}

	run(sched, time.Second)
	if !done {
		t.Fatal("wave should complete")
	}
	for _, id := range ids {
		if !rec.Saw(id, AppearanceSuccess) {
			t.Errorf("%s never turned success", id)
		}
		if rec.Appearance(id) != AppearanceRest {
			t.Errorf("%s should end at rest", id)
		}
	}
}

func TestClearRestoresTouchedObjects(t *testing.T) {
	e, sched, rec := newEngine()

	e.Succeed([]string{"a", "b"}, nil)
	run(sched, 200*time.Millisecond)
	e.Clear()

	if sched.Len() != 0 {
		t.Error("clear should cancel everything")
	}
	if rec.Appearance("a") != AppearanceRest || rec.Appearance("b") != AppearanceRest {
		t.Error("objects should be at rest")
	}
}

func TestPlayAndEventSink(t *testing.T) {
	events.Clear()
	sched := animation.NewScheduler()
	e := NewEngine(DefaultConfig(), sched, MultiSink{NewEventSink()})

	e.Play(CueCorrect)
	e.Cue("porte")
	run(sched, 400*time.Millisecond)

	if len(events.Find("feedback.sound")) != 1 {
		t.Error("expected one sound event")
	}
	if n := len(events.Find("feedback.appearance")); n != 1 {
		t.Errorf("level changes should not be logged, got %d appearance events", n)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.FeedbackConfig{FlashCount: 5})
	if cfg.FlashCount != 5 {
		t.Errorf("flash count = %d", cfg.FlashCount)
	}
	if cfg.HighlightPeriod != time.Second || cfg.FlashInterval != 100*time.Millisecond {
		t.Errorf("unset values should default, got %+v", cfg)
	}
}
