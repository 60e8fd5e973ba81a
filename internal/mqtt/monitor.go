package mqtt

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

const defaultHeartbeatSec = 5

// ClientState tracks a registered scene client's health.
type ClientState struct {
	ClientID     string    `json:"client_id"`
	Build        string    `json:"build,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	HeartbeatSec int       `json:"heartbeat_sec"`
	Objects      []string  `json:"objects"`
	Connected    bool      `json:"connected"`
}

// Monitor tracks scene client registration and health.
type Monitor struct {
	mu        sync.RWMutex
	clients   map[string]*ClientState
	specs     map[string]ObjectSpec
	tolerance float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewMonitor creates a new client monitor.
// tolerance is the multiplier for heartbeat interval before considering disconnected.
func NewMonitor(specs map[string]ObjectSpec, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	return &Monitor{
		clients:   make(map[string]*ClientState),
		specs:     specs,
		tolerance: tolerance,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Attach subscribes the registration and heartbeat topics.
func (m *Monitor) Attach(sub Subscriber, topics Topics) error {
	if err := sub.Subscribe(topics.Register(), m.registerHandler()); err != nil {
		return err
	}
	return sub.Subscribe(topics.Heartbeat(), m.heartbeatHandler())
}

// Handlers lists the monitor's topic handlers for Client.Start.
func (m *Monitor) Handlers(topics Topics) map[string]paho.MessageHandler {
	return map[string]paho.MessageHandler{
		topics.Register():  m.registerHandler(),
		topics.Heartbeat(): m.heartbeatHandler(),
	}
}

func (m *Monitor) registerHandler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		payload, err := ParseRegistration(msg.Payload())
		if err != nil {
			events.Emit("warn", "client.error", "invalid registration", map[string]interface{}{
				"topic": msg.Topic(),
				"error": err.Error(),
			})
			return
		}
		m.HandleRegistration(payload)
	}
}

func (m *Monitor) heartbeatHandler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var hb struct {
			ClientID string `json:"client_id"`
		}
		if err := json.Unmarshal(msg.Payload(), &hb); err != nil || hb.ClientID == "" {
			return
		}
		m.HandleHeartbeat(hb.ClientID)
	}
}

// HandleRegistration processes a registration payload.
// Returns validation result and emits appropriate events.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload, m.specs)

	for _, id := range result.Missing {
		events.Emit("warn", "object.misconfigured", "object missing from scene client", map[string]interface{}{
			"object_id": id,
			"client_id": payload.Client.ID,
		})
	}

	if !result.Valid {
		events.Emit("error", "client.rejected", "registration validation failed", map[string]interface{}{
			"client_id": payload.Client.ID,
			"errors":    result.Errors,
		})
		return result
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := payload.Client.ID
	existing, known := m.clients[id]
	isReconnect := known && !existing.Connected

	objs := make([]string, 0, len(payload.Objects))
	for _, o := range payload.Objects {
		objs = append(objs, o.ID)
	}
	hb := payload.Client.HeartbeatSec
	if hb <= 0 {
		hb = defaultHeartbeatSec
	}

	m.clients[id] = &ClientState{
		ClientID:     id,
		Build:        payload.Client.Build,
		LastSeen:     m.now(),
		HeartbeatSec: hb,
		Objects:      objs,
		Connected:    true,
	}

	events.Emit("info", "client.registered", "", map[string]interface{}{
		"client_id": id,
		"build":     payload.Client.Build,
		"objects":   len(objs),
		"warnings":  result.Warnings,
		"reconnect": isReconnect,
	})
	return result
}

// HandleHeartbeat refreshes a registered client. Unknown clients are ignored
// until they register.
func (m *Monitor) HandleHeartbeat(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.clients[clientID]
	if !ok {
		return false
	}
	state.LastSeen = m.now()
	state.Connected = true
	return true
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckHealth()
		}
	}
}

// CheckHealth marks clients whose heartbeat is overdue as disconnected.
func (m *Monitor) CheckHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for id, state := range m.clients {
		if !state.Connected {
			continue
		}

		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			events.Emit("warn", "client.disconnected", "heartbeat timeout", map[string]interface{}{
				"client_id":   id,
				"last_seen":   state.LastSeen.Format(time.RFC3339),
				"timeout_sec": timeout.Seconds(),
			})
		}
	}
}

// Client returns a copy of a client's state, nil if unknown.
func (m *Monitor) Client(clientID string) *ClientState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.clients[clientID]; ok {
		cpy := *state
		cpy.Objects = append([]string{}, state.Objects...)
		return &cpy
	}
	return nil
}

// Clients lists every known client, sorted by id.
func (m *Monitor) Clients() []ClientState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClientState, 0, len(m.clients))
	for _, state := range m.clients {
		cpy := *state
		cpy.Objects = append([]string{}, state.Objects...)
		out = append(out, cpy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// ConnectedClients returns the ids of currently connected clients.
func (m *Monitor) ConnectedClients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.clients {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
