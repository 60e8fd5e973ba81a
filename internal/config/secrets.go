package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables holding credentials. Each also accepts a *_FILE variant.
const (
	EnvAPIPassword   = "TRAINER_API_PASSWORD"
	EnvAdminUser     = "TRAINER_ADMIN_USER"
	EnvAdminPassword = "TRAINER_ADMIN_PASSWORD"
	EnvNotifierToken = "TRAINER_NOTIFIER_TOKEN"
	EnvRedisPassword = "TRAINER_REDIS_PASSWORD"
	EnvPGPassword    = "PGPASSWORD"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// Secrets are the credentials the trainer needs at runtime.
// They never come from trainer.yaml.
type Secrets struct {
	APIPassword   string
	AdminUser     string
	AdminPassword string
	NotifierToken string
	RedisPassword string
}

// LoadSecrets resolves every trainer secret. The first unreadable file aborts.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	for _, item := range []struct {
		env string
		dst *string
	}{
		{EnvAPIPassword, &s.APIPassword},
		{EnvAdminUser, &s.AdminUser},
		{EnvAdminPassword, &s.AdminPassword},
		{EnvNotifierToken, &s.NotifierToken},
		{EnvRedisPassword, &s.RedisPassword},
	} {
		v, err := ResolveSecret(item.env)
		if err != nil {
			return Secrets{}, err
		}
		*item.dst = v
	}
	return s, nil
}
