package config

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every configuration problem found at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration.
type Config struct {
	WatchDir   string     `yaml:"watch_dir" validate:"required"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Insert     Insert     `yaml:"insert"`
	Disposal   Disposal   `yaml:"disposal"`
	Watcher    Watcher    `yaml:"watcher"`
	Logger     Logger     `yaml:"logger"`
	Server     Server     `yaml:"server"`
	History    History    `yaml:"history"`
	Telegram   Telegram   `yaml:"telegram"`
}

// ClickHouse holds the connection settings for the target store
type ClickHouse struct {
	URL      string        `yaml:"url" validate:"required,url"`
	Database string        `yaml:"database" validate:"required"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"` // 0 means no timeout
}

// Insert describes how files are loaded into the target table
type Insert struct {
	Table       string `yaml:"table" validate:"required"`
	Fields      string `yaml:"fields"` // comma-separated column list
	NoHeader    bool   `yaml:"no_header"`
	AsyncInsert bool   `yaml:"async_insert"`
}

// Disposal holds what happens to a file once it was processed
type Disposal struct {
	OnSuccess  string `yaml:"on_success" validate:"required,oneof=remove move"`
	SuccessDir string `yaml:"success_dir" validate:"required_if=OnSuccess move"`
	OnError    string `yaml:"on_error" validate:"required,oneof=remove move"`
	ErrorDir   string `yaml:"error_dir" validate:"required_if=OnError move"`
}

// Watcher selects the filesystem notification backend
type Watcher struct {
	Backend string        `yaml:"backend" validate:"oneof=auto inotify fsnotify"`
	Settle  time.Duration `yaml:"settle" validate:"min=0"`
	Buffer  int           `yaml:"buffer" validate:"min=1"`
}

// Logger holds the configuration for the app logging
type Logger struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json logfmt"`
	File   string `yaml:"file"`
}

// Server holds the configuration of the optional status server
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" validate:"required_if=Enabled true"`
}

// History holds the configuration of the optional ingestion ledger
type History struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

type Telegram struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token" validate:"required_if=Enabled true"`
	ChatIDs []int64 `yaml:"chat_ids" validate:"required_if=Enabled true"`
}

// Fields returns the configured column subset, or nil when every column is loaded.
func (c *Config) Fields() []string {
	if c.Insert.Fields == "" {
		return nil
	}
	var fields []string
	for f := range strings.SplitSeq(c.Insert.Fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// HasHeader reports whether CSV files start with a header row.
func (c *Config) HasHeader() bool { return !c.Insert.NoHeader }
