// Package config loads server-wide runtime configuration: listen address,
// database path, recording directory, and session-token secret. It follows
// a typed-struct-plus-json-tags configuration shape, with a New()
// constructor carrying sane defaults and a NewWithConfig()/Load() pair for
// overriding them from a file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds every top-level knob the collabvmd process needs at startup.
type Config struct {
	ListenAddr   string        `json:"listen_addr"`   // e.g. ":9198"
	HTTPAddr     string        `json:"http_addr"`      // ops surface, e.g. ":9199"
	DatabasePath string        `json:"database_path"`
	RecordingDir string        `json:"recording_dir"`
	TokenSecret  string        `json:"token_secret"` // empty => generated at startup, not persisted across restarts
	TokenExpiry  time.Duration `json:"token_expiry"`
	Debug        bool          `json:"debug"`

	DefaultChatHistory int           `json:"default_chat_history"`
	DefaultTurnLength  time.Duration `json:"default_turn_length"`
	VMInfoInterval     time.Duration `json:"vm_info_interval"`
}

// New creates a Config with production-sane defaults.
func New() *Config {
	return &Config{
		ListenAddr:         ":9198",
		HTTPAddr:           ":9199",
		DatabasePath:       "collabvm.db",
		RecordingDir:       "recordings",
		TokenExpiry:        24 * time.Hour,
		Debug:              false,
		DefaultChatHistory: 20,
		DefaultTurnLength:  20 * time.Second,
		VMInfoInterval:     2 * time.Second,
	}
}

// NewWithConfig starts from New()'s defaults and overlays every non-zero
// field of override.
func NewWithConfig(override Config) *Config {
	cfg := New()
	if override.ListenAddr != "" {
		cfg.ListenAddr = override.ListenAddr
	}
	if override.HTTPAddr != "" {
		cfg.HTTPAddr = override.HTTPAddr
	}
	if override.DatabasePath != "" {
		cfg.DatabasePath = override.DatabasePath
	}
	if override.RecordingDir != "" {
		cfg.RecordingDir = override.RecordingDir
	}
	if override.TokenSecret != "" {
		cfg.TokenSecret = override.TokenSecret
	}
	if override.TokenExpiry != 0 {
		cfg.TokenExpiry = override.TokenExpiry
	}
	if override.DefaultChatHistory != 0 {
		cfg.DefaultChatHistory = override.DefaultChatHistory
	}
	if override.DefaultTurnLength != 0 {
		cfg.DefaultTurnLength = override.DefaultTurnLength
	}
	if override.VMInfoInterval != 0 {
		cfg.VMInfoInterval = override.VMInfoInterval
	}
	cfg.Debug = override.Debug
	return cfg
}

// Load reads a JSON config file from path and overlays it onto the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var override Config
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return NewWithConfig(override), nil
}

// Save writes cfg as indented JSON to path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
