package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CSVINSERTER_"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		ClickHouse: ClickHouse{
			User: "default",
		},
		Disposal: Disposal{
			OnSuccess: "remove",
			OnError:   "remove",
		},
		Watcher: Watcher{
			Backend: "auto",
			Settle:  2 * time.Second,
			Buffer:  1024,
		},
		Logger: Logger{
			Level:  "info",
			Format: "logfmt",
		},
		Server: Server{
			Enabled: false,
			Address: ":9464",
		},
		History: History{
			Enabled: false,
			Path:    "./csvinserter.db",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty path
// skips the file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	slog.Debug("Configuration file loaded", "path", path)
	return cfg, nil
}

// ApplyEnv loads a .env file from the working directory, when present, and
// overrides cfg with every CSVINSERTER_* variable that is set.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	strVars := map[string]*string{
		"WATCH_DIR":      &cfg.WatchDir,
		"CLICKHOUSE_URL": &cfg.ClickHouse.URL,
		"DATABASE":       &cfg.ClickHouse.Database,
		"USER":           &cfg.ClickHouse.User,
		"PASSWORD":       &cfg.ClickHouse.Password,
		"TABLE":          &cfg.Insert.Table,
		"FIELDS":         &cfg.Insert.Fields,
		"ON_SUCCESS":     &cfg.Disposal.OnSuccess,
		"SUCCESS_DIR":    &cfg.Disposal.SuccessDir,
		"ON_ERROR":       &cfg.Disposal.OnError,
		"ERROR_DIR":      &cfg.Disposal.ErrorDir,
		"LOG_LEVEL":      &cfg.Logger.Level,
		"LOG_FORMAT":     &cfg.Logger.Format,
		"TELEGRAM_TOKEN": &cfg.Telegram.Token,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	boolVars := map[string]*bool{
		"NO_HEADER":    &cfg.Insert.NoHeader,
		"ASYNC_INSERT": &cfg.Insert.AsyncInsert,
	}
	for name, dst := range boolVars {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a boolean", ErrInvalidConfig, EnvPrefix, name, v)
		}
		*dst = b
	}
	return nil
}

// Validate checks the struct rules. It does not touch the filesystem.
func (c *Config) Validate() error {
	c.Disposal.OnSuccess = strings.ToLower(c.Disposal.OnSuccess)
	c.Disposal.OnError = strings.ToLower(c.Disposal.OnError)

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Resolve checks that the watch directory exists and rewrites every directory
// option to its absolute, canonical form.
func (c *Config) Resolve() error {
	info, err := os.Stat(c.WatchDir)
	if err != nil {
		return fmt.Errorf("%w: watch directory does not exist: %s", ErrInvalidConfig, c.WatchDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: watch directory is not a directory: %s", ErrInvalidConfig, c.WatchDir)
	}

	dirs := []struct {
		name string
		dir  *string
	}{
		{"watch_dir", &c.WatchDir},
		{"success_dir", &c.Disposal.SuccessDir},
		{"error_dir", &c.Disposal.ErrorDir},
	}
	for _, d := range dirs {
		if *d.dir == "" {
			continue
		}
		resolved, err := canonicalize(*d.dir)
		if err != nil {
			return fmt.Errorf("%w: failed to resolve %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dir = resolved
	}
	return nil
}

func canonicalize(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// describe turns a validation failure into a message naming the yaml key
func describe(fe validator.FieldError) string {
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}
