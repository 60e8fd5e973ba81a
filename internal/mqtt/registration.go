package mqtt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AaronLay10/SentientTrainer/internal/config"
)

// RegistrationPayload is the v1 message a scene client sends when it loads.
type RegistrationPayload struct {
	Version int                  `json:"version"`
	Client  ClientInfo           `json:"client"`
	Objects []ObjectRegistration `json:"objects"`
}

// ClientInfo describes the 3D client build.
type ClientInfo struct {
	ID           string `json:"id"`
	Build        string `json:"build"`
	Platform     string `json:"platform"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// ObjectRegistration is one interactive object found in the loaded scene.
type ObjectRegistration struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Client.ID == "" {
		return nil, fmt.Errorf("client.id is required")
	}

	return &payload, nil
}

// ObjectSpec is what the trainer expects of one scene object.
type ObjectSpec struct {
	Kind     string
	Required bool
}

// ValidationResult contains validation outcome. Missing lists the required
// objects the client did not announce.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Missing  []string
}

// SpecsFromConfig expects every configured object; step targets are required.
func SpecsFromConfig(objs []config.ObjectConfig, required func(id string) bool) map[string]ObjectSpec {
	specs := make(map[string]ObjectSpec, len(objs))
	for _, o := range objs {
		specs[o.ID] = ObjectSpec{
			Kind:     o.Kind,
			Required: required == nil || required(o.ID),
		}
	}
	return specs
}

// ValidateRegistration checks a registration against the configured objects.
func ValidateRegistration(payload *RegistrationPayload, specs map[string]ObjectSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}

	registered := make(map[string]*ObjectRegistration)
	for i := range payload.Objects {
		obj := &payload.Objects[i]
		if obj.ID == "" {
			result.Errors = append(result.Errors, "object with empty id")
			result.Valid = false
			continue
		}
		registered[obj.ID] = obj
	}

	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		spec := specs[id]
		reg, found := registered[id]
		if !found {
			if spec.Required {
				result.Errors = append(result.Errors, fmt.Sprintf("required object missing: %s", id))
				result.Missing = append(result.Missing, id)
				result.Valid = false
			}
			continue
		}

		// Kind is optional on the client side.
		if reg.Kind != "" && reg.Kind != spec.Kind {
			result.Errors = append(result.Errors, fmt.Sprintf("object %s: kind mismatch (expected %s, got %s)", id, spec.Kind, reg.Kind))
			result.Valid = false
		}
	}

	for id := range registered {
		if _, ok := specs[id]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized object: %s", id))
		}
	}
	sort.Strings(result.Warnings)

	return result
}
