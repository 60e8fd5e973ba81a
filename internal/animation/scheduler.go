package animation

import (
	"sort"
	"strings"
	"time"
)

// Phase is one timed segment of a transition.
// Step receives the normalized progress of the phase in [0, 1] on every tick
// and is called with exactly 1 when the phase ends. Step may be nil.
type Phase struct {
	Duration time.Duration
	Step     func(t float64)
}

// Transition is a time-bounded animation bound to a target key.
// At most one transition runs per target; starting another one on the same
// target cancels the previous one.
type Transition struct {
	Target   string
	Phases   []Phase
	Loop     bool
	OnDone   func()
	OnCancel func()
}

type running struct {
	tr      Transition
	seq     uint64
	phase   int
	elapsed time.Duration
}

// Scheduler advances every active transition once per tick.
// It is not safe for concurrent use; the session loop owns it.
type Scheduler struct {
	active map[string]*running
	seq    uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		active: make(map[string]*running),
	}
}

// Start registers tr, cancelling any transition already bound to its target.
// A transition without phases completes immediately.
func (s *Scheduler) Start(tr Transition) {
	s.Cancel(tr.Target)

	if len(tr.Phases) == 0 {
		if tr.OnDone != nil {
			tr.OnDone()
		}
		return
	}

	s.seq++
	s.active[tr.Target] = &running{tr: tr, seq: s.seq}
}

// Cancel stops the transition bound to target and runs its OnCancel hook.
// Returns false if nothing was running.
func (s *Scheduler) Cancel(target string) bool {
	r, ok := s.active[target]
	if !ok {
		return false
	}
	delete(s.active, target)
	if r.tr.OnCancel != nil {
		r.tr.OnCancel()
	}
	return true
}

// CancelPrefix cancels every transition whose target starts with prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	n := 0
	for _, r := range s.snapshot() {
		if strings.HasPrefix(r.tr.Target, prefix) && s.Cancel(r.tr.Target) {
			n++
		}
	}
	return n
}

func (s *Scheduler) CancelAll() int {
	return s.CancelPrefix("")
}

func (s *Scheduler) Active(target string) bool {
	_, ok := s.active[target]
	return ok
}

func (s *Scheduler) Len() int {
	return len(s.active)
}

// Targets returns the active target keys in start order.
func (s *Scheduler) Targets() []string {
	runs := s.snapshot()
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.tr.Target
	}
	return out
}

// Tick advances all transitions by dt in start order.
// Hooks may start or cancel transitions; those changes apply from the next tick.
func (s *Scheduler) Tick(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	for _, r := range s.snapshot() {
		if s.active[r.tr.Target] != r {
			continue
		}
		s.advance(r, dt)
	}
}

func (s *Scheduler) advance(r *running, dt time.Duration) {
	remaining := dt
	wrapped := false

	for {
		p := r.tr.Phases[r.phase]
		r.elapsed += remaining

		if r.elapsed < p.Duration {
			if p.Step != nil {
				p.Step(float64(r.elapsed) / float64(p.Duration))
			}
			return
		}

		remaining = r.elapsed - p.Duration
		if p.Step != nil {
			p.Step(1)
		}
		// A step hook may have replaced or cancelled this transition.
		if s.active[r.tr.Target] != r {
			return
		}

		r.phase++
		r.elapsed = 0
		if r.phase < len(r.tr.Phases) {
			continue
		}

		if !r.tr.Loop {
			delete(s.active, r.tr.Target)
			if r.tr.OnDone != nil {
				r.tr.OnDone()
			}
			return
		}

		// Loops wrap at most once per tick so a zero-length cycle cannot spin.
		r.phase = 0
		if wrapped {
			return
		}
		wrapped = true
	}
}

func (s *Scheduler) snapshot() []*running {
	runs := make([]*running, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].seq < runs[j].seq
	})
	return runs
}
