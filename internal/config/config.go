package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.prochat/config.toml.
type Config struct {
	ServerURL      string `toml:"server_url"`
	DefaultProfile string `toml:"default_profile"`
	AuthToken      string `toml:"auth_token"`

	// Tuning. Zero means "use default".
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	TypingIdleMillis    int `toml:"typing_idle_ms"`
	SendTimeoutSeconds  int `toml:"send_timeout_seconds"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// PollInterval returns the open-conversation refresh interval.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// TypingIdle returns the typing debounce idle window.
func (c *Config) TypingIdle() time.Duration {
	if c.TypingIdleMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.TypingIdleMillis) * time.Millisecond
}

// SendTimeout returns the bounded wait for a push-send confirmation echo.
func (c *Config) SendTimeout() time.Duration {
	if c.SendTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}
