package config

import (
	"encoding/json"
	"log/slog"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// Manager shares the resolved configuration with the status server. The
// configuration never changes after startup.
type Manager struct {
	config *Config
}

// NewManager wraps a resolved configuration.
func NewManager(config *Config) *Manager {
	return &Manager{config: config}
}

// Get returns the configuration. Callers must not modify it.
func (m *Manager) Get() *Config {
	return m.config
}

// Redacted returns a copy of the configuration with secrets masked.
func (m *Manager) Redacted() Config {
	cp := *m.config
	if cp.ClickHouse.Password != "" {
		cp.ClickHouse.Password = redacted
	}
	if cp.Telegram.Token != "" {
		cp.Telegram.Token = redacted
	}
	cp.Telegram.ChatIDs = append([]int64(nil), m.config.Telegram.ChatIDs...)
	return cp
}

// GetJSON returns the redacted configuration as JSON.
func (m *Manager) GetJSON() string {
	return m.encode("json", json.Marshal)
}

// GetYAML returns the redacted configuration as YAML.
func (m *Manager) GetYAML() string {
	return m.encode("yaml", yaml.Marshal)
}

func (m *Manager) encode(format string, marshal func(any) ([]byte, error)) string {
	out, err := marshal(m.Redacted())
	if err != nil {
		slog.Error("Failed to encode configuration", "format", format, "error", err)
		return err.Error()
	}
	return string(out)
}
