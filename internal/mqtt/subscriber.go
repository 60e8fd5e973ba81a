package mqtt

import (
	"encoding/json"
	"errors"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

// Topics derives the trainer's topics from its prefix, "trainer/<training_id>".
type Topics struct {
	Prefix string
}

func (t Topics) Click() string     { return t.Prefix + "/click" }
func (t Topics) Feedback() string  { return t.Prefix + "/feedback" }
func (t Topics) Register() string  { return t.Prefix + "/register" }
func (t Topics) Heartbeat() string { return t.Prefix + "/heartbeat" }

// ErrEmptyClick is returned for a click payload without an object id.
var ErrEmptyClick = errors.New("click payload has no object id")

type clickPayload struct {
	ObjectID string `json:"object_id"`
	ClientID string `json:"client_id,omitempty"`
}

// ParseClick accepts {"object_id":"..."}, a JSON string or a raw id.
func ParseClick(data []byte) (objectID, clientID string, err error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", "", ErrEmptyClick
	}

	switch raw[0] {
	case '{':
		var p clickPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return "", "", err
		}
		objectID, clientID = strings.TrimSpace(p.ObjectID), p.ClientID
	case '"':
		if err := json.Unmarshal([]byte(raw), &objectID); err != nil {
			return "", "", err
		}
		objectID = strings.TrimSpace(objectID)
	default:
		objectID = raw
	}

	if objectID == "" {
		return "", "", ErrEmptyClick
	}
	return objectID, clientID, nil
}

// ClickSubscriber turns messages on the click topic into clicks handed to
// handle. handle runs on the paho goroutine and must not block; the app
// posts the click to the session loop.
type ClickSubscriber struct {
	client Subscriber
	topic  string
	handle func(objectID string)
}

func NewClickSubscriber(client Subscriber, topics Topics, handle func(objectID string)) *ClickSubscriber {
	return &ClickSubscriber{
		client: client,
		topic:  topics.Click(),
		handle: handle,
	}
}

func (s *ClickSubscriber) Topic() string {
	return s.topic
}

func (s *ClickSubscriber) Subscribe() error {
	return s.client.Subscribe(s.topic, s.Handler())
}

// Handler is the paho callback, exposed for Client.Start.
func (s *ClickSubscriber) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		objectID, clientID, err := ParseClick(msg.Payload())
		if err != nil {
			events.Emit("warn", "client.error", "invalid click payload", map[string]interface{}{
				"topic": msg.Topic(),
				"error": err.Error(),
			})
			return
		}

		events.Emit("debug", "client.click", "", map[string]interface{}{
			"object_id": objectID,
			"client_id": clientID,
		})
		s.handle(objectID)
	}
}
