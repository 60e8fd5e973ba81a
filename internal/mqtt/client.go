package mqtt

import (
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	opTimeout  = 10 * time.Second
	defaultQoS = 1
)

// Subscriber is the part of the client the inbound handlers need.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Publisher is the part of the client the outbound sinks need.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Client wraps the Paho MQTT client for the trainer.
type Client struct {
	client paho.Client
	broker string
	mu     sync.Mutex

	subsMu sync.Mutex
	subs   map[string]paho.MessageHandler
}

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect. An empty broker
// falls back to BrokerURL. Subscriptions are restored after every reconnect.
func NewClient(broker, clientID string) *Client {
	if broker == "" {
		broker = BrokerURL()
	}
	c := &Client{
		broker: broker,
		subs:   make(map[string]paho.MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) { c.resubscribe() })

	c.client = paho.NewClient(opts)
	return c
}

func (c *Client) Broker() string {
	return c.broker
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.subsMu.Lock()
	c.subs[topic] = handler
	c.subsMu.Unlock()

	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, defaultQoS, handler)
	if !token.WaitTimeout(opTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

func (c *Client) resubscribe() {
	c.subsMu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.subsMu.Unlock()

	// Runs on the paho callback goroutine; waiting here would block it.
	go func() {
		for topic, handler := range subs {
			if err := c.subscribe(topic, handler); err != nil {
				log.Printf("mqtt: resubscribe %s: %v", topic, err)
			}
		}
	}()
}

// Publish sends payload and waits for the broker acknowledgement.
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, false, payload)
	if qos == 0 {
		return nil
	}
	if !token.WaitTimeout(opTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = &NotConnectedError{}

type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "mqtt not connected"
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates the broker did not acknowledge in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}

// Start connects and subscribes every handler, logging errors but not
// crashing. Returns true if connected.
func (c *Client) Start(handlers map[string]paho.MessageHandler) bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.broker, err)
		return false
	}

	ok := true
	for topic, handler := range handlers {
		if err := c.Subscribe(topic, handler); err != nil {
			log.Printf("mqtt: failed to subscribe to %s: %v", topic, err)
			ok = false
			continue
		}
		log.Printf("mqtt: subscribed to %s", topic)
	}
	return ok
}
