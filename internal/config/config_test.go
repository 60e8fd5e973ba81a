package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadTrainerConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
training:
  id: loto-demo
  project_name: LOTO Demo
network:
  ui_port: 9090
metadata:
  attempts: 5
  retry_delay: 500ms
feedback:
  flash_count: 4
session:
  close_delay: 10s
  auto_close: false
objects:
  - id: porte
    kind: door
    target:
      rotation: {x: 0, y: 45, z: 0}
    duration: 1s
`)

	cfg, err := LoadTrainerConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.TrainingID() != "loto-demo" {
		t.Errorf("training id = %q", cfg.TrainingID())
	}
	if cfg.ProjectName() != "LOTO Demo" {
		t.Errorf("project name = %q", cfg.ProjectName())
	}
	if cfg.UIPort() != 9090 {
		t.Errorf("ui port = %d", cfg.UIPort())
	}
	if cfg.MetadataAttempts() != 5 {
		t.Errorf("metadata attempts = %d", cfg.MetadataAttempts())
	}
	if cfg.MetadataRetryDelay() != 500*time.Millisecond {
		t.Errorf("metadata retry delay = %v", cfg.MetadataRetryDelay())
	}
	if cfg.Feedback.FlashCount != 4 {
		t.Errorf("flash count = %d", cfg.Feedback.FlashCount)
	}
	if cfg.CloseDelay() != 10*time.Second {
		t.Errorf("close delay = %v", cfg.CloseDelay())
	}
	if cfg.AutoClose() {
		t.Error("auto close should be disabled")
	}
	if cfg.TopicPrefix() != "trainer/loto-demo" {
		t.Errorf("topic prefix = %q", cfg.TopicPrefix())
	}

	if len(cfg.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(cfg.Objects))
	}
	porte, ok := cfg.Object("porte")
	if !ok {
		t.Fatal("porte not found")
	}
	if porte.Target == nil || porte.Target.Rotation.Y != 45 {
		t.Errorf("unexpected porte target %+v", porte.Target)
	}
	if porte.Duration != time.Second {
		t.Errorf("porte duration = %v", porte.Duration)
	}
}

func TestLoadTrainerConfig_Defaults(t *testing.T) {
	cfg, err := LoadTrainerConfig(writeConfig(t, "version: 1\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.UIPort() != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.UIPort())
	}
	if cfg.FrameInterval() != time.Second/60 {
		t.Errorf("frame interval = %v", cfg.FrameInterval())
	}
	if cfg.CloseDelay() != 3*time.Second {
		t.Errorf("close delay = %v", cfg.CloseDelay())
	}
	if !cfg.AutoClose() {
		t.Error("auto close should default to true")
	}
	if len(cfg.Objects) != 7 {
		t.Errorf("expected the 7 built-in objects, got %d", len(cfg.Objects))
	}
}

func TestLoadTrainerConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad version", "version: 2\n", "unsupported trainer.yaml version"},
		{"unknown kind", "version: 1\nobjects:\n  - id: a\n    kind: lever\n", "unknown kind"},
		{"duplicate id", "version: 1\nobjects:\n  - id: a\n    kind: door\n  - id: a\n    kind: door\n", "duplicate id"},
		{"missing dependent", "version: 1\nobjects:\n  - id: a\n    kind: handle\n    dependent: b\n", "dependent"},
		{"bad duration", "version: 1\nsession:\n  close_delay: soon\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTrainerConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRAINER_UI_PORT", "7070")
	t.Setenv("TRAINER_METADATA_URL", "https://platform.example/api/metadata")
	t.Setenv("TRAINER_REDIS_ADDR", "redis:6379")
	t.Setenv("TRAINER_NOTIFIER_SIMULATE", "true")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.UIPort() != 7070 {
		t.Errorf("ui port = %d", cfg.UIPort())
	}
	if cfg.Metadata.URL != "https://platform.example/api/metadata" {
		t.Errorf("metadata url = %q", cfg.Metadata.URL)
	}
	if cfg.Session.RedisAddr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Session.RedisAddr)
	}
	if !cfg.Notifier.Simulate {
		t.Error("simulate should be enabled")
	}
	if cfg.TrainingID() != "loto-robotic-arm" {
		t.Errorf("training id should keep its default, got %q", cfg.TrainingID())
	}
}

func TestDefaultObjectsValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	handle, ok := cfg.Object("poignee")
	if !ok || handle.Dependent != "Lock" {
		t.Errorf("poignee should depend on Lock, got %+v", handle)
	}
	if !handle.InitialOn {
		t.Error("poignee starts on")
	}
}
