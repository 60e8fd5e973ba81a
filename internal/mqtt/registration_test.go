package mqtt

import (
	"testing"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
)

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name: "valid v1 registration",
			json: `{
				"version": 1,
				"client": {
					"id": "webgl-1",
					"build": "loto-2024.3",
					"platform": "WebGL",
					"heartbeat_sec": 5
				},
				"objects": [
					{"id": "commutateur", "kind": "selector"},
					{"id": "porte", "kind": "door"}
				]
			}`,
			wantErr: false,
		},
		{
			name: "unsupported version",
			json: `{
				"version": 2,
				"client": {"id": "webgl-1"}
			}`,
			wantErr: true,
		},
		{
			name: "missing client id",
			json: `{
				"version": 1,
				"client": {"build": "loto"}
			}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			json:    `{invalid}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseRegistration([]byte(tt.json))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if payload == nil || len(payload.Objects) != 2 {
				t.Errorf("unexpected payload %+v", payload)
			}
		})
	}
}

func TestValidateRegistration(t *testing.T) {
	specs := map[string]ObjectSpec{
		"porte":       {Kind: "door", Required: true},
		"commutateur": {Kind: "selector", Required: true},
		"decor":       {Kind: "door", Required: false},
	}

	tests := []struct {
		name         string
		objects      []ObjectRegistration
		wantValid    bool
		wantErrs     int
		wantMissing  int
		wantWarnings int
	}{
		{
			name: "all required objects",
			objects: []ObjectRegistration{
				{ID: "porte", Kind: "door"},
				{ID: "commutateur", Kind: "selector"},
			},
			wantValid: true,
		},
		{
			name: "kind is optional",
			objects: []ObjectRegistration{
				{ID: "porte"},
				{ID: "commutateur"},
			},
			wantValid: true,
		},
		{
			name: "missing required object",
			objects: []ObjectRegistration{
				{ID: "porte", Kind: "door"},
			},
			wantValid:   false,
			wantErrs:    1,
			wantMissing: 1,
		},
		{
			name: "kind mismatch",
			objects: []ObjectRegistration{
				{ID: "porte", Kind: "handle"},
				{ID: "commutateur", Kind: "selector"},
			},
			wantValid: false,
			wantErrs:  1,
		},
		{
			name: "unknown object is a warning",
			objects: []ObjectRegistration{
				{ID: "porte"},
				{ID: "commutateur"},
				{ID: "robot-arm"},
			},
			wantValid:    true,
			wantWarnings: 1,
		},
		{
			name: "empty id",
			objects: []ObjectRegistration{
				{ID: ""},
				{ID: "porte"},
				{ID: "commutateur"},
			},
			wantValid: false,
			wantErrs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := &RegistrationPayload{Version: 1, Client: ClientInfo{ID: "webgl-1"}, Objects: tt.objects}
			result := ValidateRegistration(payload, specs)
			if result.Valid != tt.wantValid {
				t.Errorf("expected Valid=%v, got %v", tt.wantValid, result.Valid)
			}
			if len(result.Errors) != tt.wantErrs {
				t.Errorf("expected %d errors, got %d: %v", tt.wantErrs, len(result.Errors), result.Errors)
			}
			if len(result.Missing) != tt.wantMissing {
				t.Errorf("expected %d missing, got %v", tt.wantMissing, result.Missing)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("expected %d warnings, got %v", tt.wantWarnings, result.Warnings)
			}
		})
	}
}

func TestValidateAgainstDefaultObjects(t *testing.T) {
	objs := config.DefaultObjects()
	specs := SpecsFromConfig(objs, nil)

	payload := &RegistrationPayload{Version: 1, Client: ClientInfo{ID: "webgl-1"}}
	for _, o := range objs {
		payload.Objects = append(payload.Objects, ObjectRegistration{ID: o.ID, Kind: o.Kind})
	}

	result := ValidateRegistration(payload, specs)
	if !result.Valid {
		t.Errorf("expected valid registration against the default scene, got errors: %v", result.Errors)
	}
}

func TestSpecsFromConfigRequired(t *testing.T) {
	specs := SpecsFromConfig(config.DefaultObjects(), func(id string) bool { return id != "Lock" })
	if specs["Lock"].Required {
		t.Error("Lock should be optional")
	}
	if !specs["porte"].Required || specs["porte"].Kind != config.KindDoor {
		t.Errorf("porte spec = %+v", specs["porte"])
	}
}

func TestMonitorRegistrationAndHealth(t *testing.T) {
	events.Clear()
	specs := map[string]ObjectSpec{"porte": {Kind: "door", Required: true}}
	m := NewMonitor(specs, 2.0)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	mock := NewMockMQTTClient()
	if err := m.Attach(mock, testTopics); err != nil {
		t.Fatalf("attach: %v", err)
	}

	mock.SimulateMessage(testTopics.Register(), []byte(`{"version":1,"client":{"id":"webgl-1","heartbeat_sec":5},"objects":[{"id":"porte"}]}`))
	state := m.Client("webgl-1")
	if state == nil || !state.Connected || len(state.Objects) != 1 {
		t.Fatalf("client state = %+v", state)
	}
	if len(events.Find("client.registered")) != 1 {
		t.Error("expected client.registered")
	}

	now = now.Add(8 * time.Second)
	mock.SimulateMessage(testTopics.Heartbeat(), []byte(`{"client_id":"webgl-1"}`))
	now = now.Add(8 * time.Second)
	m.CheckHealth()
	if !m.Client("webgl-1").Connected {
		t.Error("heartbeat should keep the client connected")
	}

	now = now.Add(5 * time.Second)
	m.CheckHealth()
	if m.Client("webgl-1").Connected {
		t.Error("client should time out after two missed heartbeats")
	}
	if len(events.Find("client.disconnected")) != 1 {
		t.Error("expected client.disconnected")
	}
	if len(m.ConnectedClients()) != 0 {
		t.Error("no client should be connected")
	}
}

func TestMonitorRejectsIncompleteScene(t *testing.T) {
	events.Clear()
	specs := map[string]ObjectSpec{
		"porte":   {Kind: "door", Required: true},
		"poignee": {Kind: "handle", Required: true},
	}
	m := NewMonitor(specs, 0)

	result := m.HandleRegistration(&RegistrationPayload{
		Version: 1,
		Client:  ClientInfo{ID: "webgl-2"},
		Objects: []ObjectRegistration{{ID: "porte"}},
	})
	if result.Valid {
		t.Fatal("registration should be rejected")
	}
	if m.Client("webgl-2") != nil {
		t.Error("rejected client must not be tracked")
	}
	if len(events.Find("object.misconfigured")) != 1 || len(events.Find("client.rejected")) != 1 {
		t.Error("missing object and rejection should be reported")
	}
	if m.HandleHeartbeat("webgl-2") {
		t.Error("heartbeat from an unknown client should be ignored")
	}
}
