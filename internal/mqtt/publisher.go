package mqtt

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/feedback"
)

// Command is one message on the feedback topic.
type Command struct {
	Command    string               `json:"command"`
	ObjectID   string               `json:"object_id,omitempty"`
	Appearance string               `json:"appearance,omitempty"`
	Level      *float64             `json:"level,omitempty"`
	Cue        string               `json:"cue,omitempty"`
	Transform  *animation.Transform `json:"transform,omitempty"`
	Visible    *bool                `json:"visible,omitempty"`
}

// defaultLevelStep is the smallest level change worth a message.
const defaultLevelStep = 0.05

type lastAppearance struct {
	appearance feedback.Appearance
	level      float64
}

// FeedbackPublisher renders feedback and object transforms for the remote
// 3D client. It implements feedback.Sink and objects.TransformSink.
type FeedbackPublisher struct {
	pub   Publisher
	topic string

	// LevelStep thins out blend updates; 0 and 1 are always sent.
	LevelStep float64

	mu      sync.Mutex
	last    map[string]lastAppearance
	failing bool
}

func NewFeedbackPublisher(pub Publisher, topics Topics) *FeedbackPublisher {
	return &FeedbackPublisher{
		pub:       pub,
		topic:     topics.Feedback(),
		LevelStep: defaultLevelStep,
		last:      make(map[string]lastAppearance),
	}
}

// overlayKey tracks the overlay next to the objects.
const overlayKey = "\x00overlay"

func (p *FeedbackPublisher) changed(key string, a feedback.Appearance, level float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.last[key]
	if ok && prev.appearance == a {
		if prev.level == level {
			return false
		}
		if level != 0 && level != 1 && math.Abs(level-prev.level) < p.LevelStep {
			return false
		}
	}
	p.last[key] = lastAppearance{appearance: a, level: level}
	return true
}

func (p *FeedbackPublisher) SetAppearance(id string, a feedback.Appearance, level float64) {
	if !p.changed(id, a, level) {
		return
	}
	p.send(Command{Command: "appearance", ObjectID: id, Appearance: string(a), Level: &level})
}

func (p *FeedbackPublisher) SetOverlay(a feedback.Appearance, level float64) {
	if !p.changed(overlayKey, a, level) {
		return
	}
	p.send(Command{Command: "overlay", Appearance: string(a), Level: &level})
}

func (p *FeedbackPublisher) PlayCue(c feedback.Cue) {
	p.send(Command{Command: "sound", Cue: string(c)})
}

func (p *FeedbackPublisher) SetTransform(id string, t animation.Transform) {
	p.send(Command{Command: "transform", ObjectID: id, Transform: &t})
}

func (p *FeedbackPublisher) SetVisible(id string, visible bool) {
	p.send(Command{Command: "visibility", ObjectID: id, Visible: &visible})
}

// send publishes at QoS 0; a frame that cannot be delivered is dropped.
// Only the first failure of a streak is reported.
func (p *FeedbackPublisher) send(cmd Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return
	}

	err = p.pub.Publish(p.topic, 0, payload)

	p.mu.Lock()
	report := err != nil && !p.failing
	p.failing = err != nil
	p.mu.Unlock()

	if report {
		events.Emit("warn", "client.error", "feedback publish failed", map[string]interface{}{
			"topic":   p.topic,
			"command": cmd.Command,
			"error":   err.Error(),
		})
	}
}
