// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	// Salesforce Agentforce credentials. All four are required; a missing
	// value is a startup error, never an empty-credential auth attempt.
	InstanceURL  string
	ClientID     string
	ClientSecret string
	AgentID      string

	// APIBase overrides the Agent API host. Empty means the production
	// endpoint; tests point it at a local fake.
	APIBase string

	TranscriptEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		InstanceURL:       strings.TrimRight(getEnv("INSTANCE_URL", ""), "/"),
		ClientID:          getEnv("CLIENT_ID", ""),
		ClientSecret:      getEnv("CLIENT_SECRET", ""),
		AgentID:           getEnv("AGENT_ID", ""),
		APIBase:           strings.TrimRight(getEnv("AGENT_API_BASE", ""), "/"),
		TranscriptEnabled: getEnvBool("TRANSCRIPT_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.InstanceURL == "" {
		return fmt.Errorf("INSTANCE_URL cannot be empty")
	}
	if !strings.HasPrefix(c.InstanceURL, "http://") && !strings.HasPrefix(c.InstanceURL, "https://") {
		return fmt.Errorf("INSTANCE_URL must be an absolute URL, got %q", c.InstanceURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("CLIENT_ID cannot be empty")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("CLIENT_SECRET cannot be empty")
	}
	if c.AgentID == "" {
		return fmt.Errorf("AGENT_ID cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
