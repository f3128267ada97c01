package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	StateDir       string
	BufferMaxLines int
	TabNamePrefix  string
	// LoadingTimeout raises a readiness warning when the executor stays silent.
	// Zero disables the watchdog.
	LoadingTimeout time.Duration
	// DisableAuditLogging disables audit trail debug logs for commands.
	DisableAuditLogging bool
}

// DefaultBufferMaxLines is the default per-transcript line limit.
const DefaultBufferMaxLines = 5000

// DefaultTabNamePrefix prefixes generated tab names.
const DefaultTabNamePrefix = "Tab"

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".attackdeck", "state")
	}
	if cfg.BufferMaxLines <= 0 {
		cfg.BufferMaxLines = DefaultBufferMaxLines
	}
	if cfg.TabNamePrefix == "" {
		cfg.TabNamePrefix = DefaultTabNamePrefix
	}
	if cfg.LoadingTimeout < 0 {
		return ServiceConfig{}, errors.New("loading timeout must not be negative")
	}
	return cfg, nil
}
