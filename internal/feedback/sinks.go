package feedback

import (
	"sync"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

// MultiSink fans every command out to each sink in order.
type MultiSink []Sink

func (m MultiSink) SetAppearance(id string, a Appearance, level float64) {
	for _, s := range m {
		s.SetAppearance(id, a, level)
	}
}

func (m MultiSink) SetOverlay(a Appearance, level float64) {
	for _, s := range m {
		s.SetOverlay(a, level)
	}
}

func (m MultiSink) PlayCue(c Cue) {
	for _, s := range m {
		s.PlayCue(c)
	}
}

// EventSink logs appearance changes as events. Level updates inside the
// same appearance are not logged.
type EventSink struct {
	mu      sync.Mutex
	last    map[string]Appearance
	overlay Appearance
}

func NewEventSink() *EventSink {
	return &EventSink{
		last:    make(map[string]Appearance),
		overlay: AppearanceRest,
	}
}

func (s *EventSink) SetAppearance(id string, a Appearance, level float64) {
	s.mu.Lock()
	prev, ok := s.last[id]
	if ok && prev == a {
		s.mu.Unlock()
		return
	}
	if !ok && a == AppearanceRest {
		s.last[id] = a
		s.mu.Unlock()
		return
	}
	s.last[id] = a
	s.mu.Unlock()

	events.Emit("debug", "feedback.appearance", "", map[string]interface{}{
		"object_id":  id,
		"appearance": string(a),
	})
}

func (s *EventSink) SetOverlay(a Appearance, level float64) {
	s.mu.Lock()
	if s.overlay == a {
		s.mu.Unlock()
		return
	}
	s.overlay = a
	s.mu.Unlock()

	events.Emit("debug", "feedback.overlay", "", map[string]interface{}{
		"appearance": string(a),
	})
}

func (s *EventSink) PlayCue(c Cue) {
	events.Emit("info", "feedback.sound", "", map[string]interface{}{
		"cue": string(c),
	})
}

// Command is one recorded feedback call.
type Command struct {
	Kind       string
	ObjectID   string
	Appearance Appearance
	Level      float64
	Cue        Cue
}

// Recorder keeps every command, for tests and dry runs.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	current  map[string]Appearance
	overlay  Appearance
}

func NewRecorder() *Recorder {
	return &Recorder{
		current: make(map[string]Appearance),
		overlay: AppearanceRest,
	}
}

func (r *Recorder) SetAppearance(id string, a Appearance, level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Kind: "appearance", ObjectID: id, Appearance: a, Level: level})
	r.current[id] = a
}

func (r *Recorder) SetOverlay(a Appearance, level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Kind: "overlay", Appearance: a, Level: level})
	r.overlay = a
}

func (r *Recorder) PlayCue(c Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Kind: "sound", Cue: c})
}

func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Appearance is the last appearance set on id, rest if never set.
func (r *Recorder) Appearance(id string) Appearance {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.current[id]; ok {
		return a
	}
	return AppearanceRest
}

func (r *Recorder) Overlay() Appearance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlay
}

// Cues lists the sounds played, oldest first.
func (r *Recorder) Cues() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Cue
	for _, c := range r.commands {
		if c.Kind == "sound" {
			out = append(out, c.Cue)
		}
	}
	return out
}

// Saw reports whether appearance a was ever set on id.
func (r *Recorder) Saw(id string, a Appearance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if c.Kind == "appearance" && c.ObjectID == id && c.Appearance == a {
			return true
		}
	}
	return false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
	r.current = make(map[string]Appearance)
	r.overlay = AppearanceRest
}
