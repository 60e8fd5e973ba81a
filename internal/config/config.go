package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
)

// Object kinds understood by the scene builder.
const (
	KindSelector  = "selector"
	KindButton    = "button"
	KindKeySwitch = "key_switch"
	KindKey       = "key"
	KindHandle    = "handle"
	KindPadlock   = "padlock"
	KindDoor      = "door"
)

type TrainerConfig struct {
	Version  int `yaml:"version"`
	Training struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		ProjectName string `yaml:"project_name"`
		Description string `yaml:"description"`
	} `yaml:"training"`
	Network struct {
		UIPort   int `yaml:"ui_port"`
		MQTTPort int `yaml:"mqtt_port"`
	} `yaml:"network"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Metadata MetadataConfig `yaml:"metadata"`
	Notifier NotifierConfig `yaml:"notifier"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Session  SessionConfig  `yaml:"session"`
	API      struct {
		User string `yaml:"user"`
	} `yaml:"api"`
	Objects []ObjectConfig `yaml:"objects"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type MetadataConfig struct {
	Path        string        `yaml:"path"`
	URL         string        `yaml:"url"`
	BuildName   string        `yaml:"build_name"`
	BuildType   string        `yaml:"build_type"`
	ContainerID string        `yaml:"container_id"`
	Attempts    int           `yaml:"attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

type NotifierConfig struct {
	URL        string        `yaml:"url"`
	Simulate   bool          `yaml:"simulate"`
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
	OutboxPath string        `yaml:"outbox_path"`
}

type FeedbackConfig struct {
	HighlightPeriod time.Duration `yaml:"highlight_period"`
	PulseGap        time.Duration `yaml:"pulse_gap"`
	FlashCount      int           `yaml:"flash_count"`
	FlashInterval   time.Duration `yaml:"flash_interval"`
	WaveStep        time.Duration `yaml:"wave_step"`
	WaveHold        time.Duration `yaml:"wave_hold"`
}

type SessionConfig struct {
	FrameRate  int           `yaml:"frame_rate"`
	CloseDelay time.Duration `yaml:"close_delay"`
	AutoClose  *bool         `yaml:"auto_close"`
	RedisAddr  string        `yaml:"redis_addr"`
	GuardTTL   time.Duration `yaml:"guard_ttl"`
}

// ObjectConfig describes one interactive scene object.
// Target is the offset applied to Rest when the object leaves its initial state.
type ObjectConfig struct {
	ID        string               `yaml:"id"`
	Kind      string               `yaml:"kind"`
	InitialOn bool                 `yaml:"initial_on"`
	Rest      *animation.Transform `yaml:"rest"`
	Target    *animation.Transform `yaml:"target"`
	Duration  time.Duration        `yaml:"duration"`
	Dependent string               `yaml:"dependent"`
	Bounce    float64              `yaml:"bounce"`
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *TrainerConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// TrainingID returns the training identifier used in topics and event storage.
func (c *TrainerConfig) TrainingID() string {
	if c.Training.ID == "" {
		return "loto-robotic-arm"
	}
	return c.Training.ID
}

// ProjectName is the name reported to the training platform on completion.
func (c *TrainerConfig) ProjectName() string {
	if c.Training.ProjectName != "" {
		return c.Training.ProjectName
	}
	return c.TrainingID()
}

func (c *TrainerConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "trainer/" + c.TrainingID()
	}
	return c.MQTT.TopicPrefix
}

func (c *TrainerConfig) MQTTClientID() string {
	if c.MQTT.ClientID == "" {
		return "trainer-" + c.TrainingID()
	}
	return c.MQTT.ClientID
}

func (c *TrainerConfig) MetadataAttempts() int {
	if c.Metadata.Attempts <= 0 {
		return 3
	}
	return c.Metadata.Attempts
}

func (c *TrainerConfig) MetadataRetryDelay() time.Duration {
	if c.Metadata.RetryDelay <= 0 {
		return 2 * time.Second
	}
	return c.Metadata.RetryDelay
}

func (c *TrainerConfig) MetadataTimeout() time.Duration {
	if c.Metadata.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Metadata.Timeout
}

func (c *TrainerConfig) NotifierAttempts() int {
	if c.Notifier.Attempts <= 0 {
		return 3
	}
	return c.Notifier.Attempts
}

func (c *TrainerConfig) NotifierRetryDelay() time.Duration {
	if c.Notifier.RetryDelay <= 0 {
		return 2 * time.Second
	}
	return c.Notifier.RetryDelay
}

func (c *TrainerConfig) NotifierTimeout() time.Duration {
	if c.Notifier.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Notifier.Timeout
}

func (c *TrainerConfig) OutboxPath() string {
	if c.Notifier.OutboxPath == "" {
		return "trainer-outbox.db"
	}
	return c.Notifier.OutboxPath
}

// FrameInterval is the period of the session loop, 60 Hz by default.
func (c *TrainerConfig) FrameInterval() time.Duration {
	rate := c.Session.FrameRate
	if rate <= 0 {
		rate = 60
	}
	return time.Second / time.Duration(rate)
}

func (c *TrainerConfig) CloseDelay() time.Duration {
	if c.Session.CloseDelay <= 0 {
		return 3 * time.Second
	}
	return c.Session.CloseDelay
}

func (c *TrainerConfig) AutoClose() bool {
	if c.Session.AutoClose == nil {
		return true
	}
	return *c.Session.AutoClose
}

func (c *TrainerConfig) GuardTTL() time.Duration {
	if c.Session.GuardTTL <= 0 {
		return 2 * time.Hour
	}
	return c.Session.GuardTTL
}

// Overrides are environment variables that take precedence over trainer.yaml.
type Overrides struct {
	TrainingID   string `env:"TRAINER_TRAINING_ID"`
	UIPort       int    `env:"TRAINER_UI_PORT"`
	MQTTBroker   string `env:"TRAINER_MQTT_BROKER"`
	MetadataPath string `env:"TRAINER_METADATA_PATH"`
	MetadataURL  string `env:"TRAINER_METADATA_URL"`
	ContainerID  string `env:"TRAINER_CONTAINER_ID"`
	NotifierURL  string `env:"TRAINER_NOTIFIER_URL"`
	OutboxPath   string `env:"TRAINER_OUTBOX_PATH"`
	RedisAddr    string `env:"TRAINER_REDIS_ADDR"`
	APIUser      string `env:"TRAINER_API_USER"`
	Simulate     *bool  `env:"TRAINER_NOTIFIER_SIMULATE"`
}

// ApplyEnv overlays environment overrides onto c.
func (c *TrainerConfig) ApplyEnv() error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&c.Training.ID, o.TrainingID)
	setString(&c.MQTT.Broker, o.MQTTBroker)
	setString(&c.Metadata.Path, o.MetadataPath)
	setString(&c.Metadata.URL, o.MetadataURL)
	setString(&c.Metadata.ContainerID, o.ContainerID)
	setString(&c.Notifier.URL, o.NotifierURL)
	setString(&c.Notifier.OutboxPath, o.OutboxPath)
	setString(&c.Session.RedisAddr, o.RedisAddr)
	setString(&c.API.User, o.APIUser)
	if o.UIPort != 0 {
		c.Network.UIPort = o.UIPort
	}
	if o.Simulate != nil {
		c.Notifier.Simulate = *o.Simulate
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Object returns the configured object with the given id.
func (c *TrainerConfig) Object(id string) (ObjectConfig, bool) {
	for _, o := range c.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return ObjectConfig{}, false
}

// Validate checks object declarations. It does not require any object to be present.
func (c *TrainerConfig) Validate() error {
	seen := make(map[string]bool, len(c.Objects))
	for i, o := range c.Objects {
		if o.ID == "" {
			return fmt.Errorf("objects[%d]: missing id", i)
		}
		if seen[o.ID] {
			return fmt.Errorf("objects[%d]: duplicate id %q", i, o.ID)
		}
		seen[o.ID] = true

		switch o.Kind {
		case KindSelector, KindButton, KindKeySwitch, KindKey, KindHandle, KindPadlock, KindDoor:
		default:
			return fmt.Errorf("object %q: unknown kind %q", o.ID, o.Kind)
		}
	}
	for _, o := range c.Objects {
		if o.Dependent != "" && !seen[o.Dependent] {
			return fmt.Errorf("object %q: dependent %q is not declared", o.ID, o.Dependent)
		}
	}
	return nil
}

// LoadTrainerConfig reads trainer.yaml. Missing sections fall back to the
// accessor defaults; a file without objects gets the built-in LOTO scene.
func LoadTrainerConfig(path string) (*TrainerConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg TrainerConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported trainer.yaml version: %d", cfg.Version)
	}

	if len(cfg.Objects) == 0 {
		cfg.Objects = DefaultObjects()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trainer.yaml: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no trainer.yaml is given.
func Default() *TrainerConfig {
	cfg := &TrainerConfig{Version: 1}
	cfg.Training.ID = "loto-robotic-arm"
	cfg.Training.Name = "Consignation LOTO bras robotique"
	cfg.Objects = DefaultObjects()
	return cfg
}

// DefaultObjects is the LOTO robotic arm cell.
func DefaultObjects() []ObjectConfig {
	return []ObjectConfig{
		{
			ID:       "commutateur",
			Kind:     KindSelector,
			Target:   &animation.Transform{Rotation: animation.Vec3{X: 90}},
			Duration: 200 * time.Millisecond,
		},
		{
			ID:       "demande-d-acces",
			Kind:     KindButton,
			Target:   &animation.Transform{Position: animation.Vec3{Z: -0.01}},
			Duration: 100 * time.Millisecond,
		},
		{
			ID:        "operateur-cle-acces-1",
			Kind:      KindKeySwitch,
			Target:    &animation.Transform{Rotation: animation.Vec3{Z: 90}},
			Duration:  200 * time.Millisecond,
			Dependent: "cle-1",
		},
		{
			ID:       "cle-1",
			Kind:     KindKey,
			Target:   &animation.Transform{Position: animation.Vec3{X: -1}},
			Duration: 500 * time.Millisecond,
		},
		{
			ID:        "poignee",
			Kind:      KindHandle,
			InitialOn: true,
			Target:    &animation.Transform{Position: animation.Vec3{Z: 3}},
			Duration:  500 * time.Millisecond,
			Dependent: "Lock",
			Bounce:    1.3,
		},
		{
			ID:     "Lock",
			Kind:   KindPadlock,
			Target: &animation.Transform{Scale: 1},
			Bounce: 1.3,
		},
		{
			ID:       "porte",
			Kind:     KindDoor,
			Target:   &animation.Transform{Rotation: animation.Vec3{Y: 30}},
			Duration: 500 * time.Millisecond,
		},
	}
}
