package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/contre95/csvinserter/src/features/config"
	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: a charm handler on stderr and, when
// cfg.File is set, a JSON handler appending to that file. The returned func
// closes the file.
func SetupLogger(cfg config.Logger) (*slog.Logger, func() error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.Logger, stderr io.Writer) (*slog.Logger, func() error) {
	var formatter log.Formatter
	switch cfg.Format {
	case "json":
		formatter = log.JSONFormatter
	case "text":
		formatter = log.TextFormatter
	default:
		formatter = log.LogfmtFormatter
	}

	level := log.InfoLevel
	slogLevel := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level, slogLevel = log.DebugLevel, slog.LevelDebug
	case "warn":
		level, slogLevel = log.WarnLevel, slog.LevelWarn
	case "error":
		level, slogLevel = log.ErrorLevel, slog.LevelError
	}

	handler := log.NewWithOptions(stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "csvinserter",
		Formatter:       formatter,
		Level:           level,
	})

	cleanup := func() error { return nil }
	logger := slog.New(handler)
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Error("failed to open log file, using stderr only", "error", err, "file", cfg.File)
		} else {
			fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slogLevel})
			logger = slog.New(slogmulti.Fanout(handler, fileHandler))
			cleanup = file.Close
		}
	}

	logger.Info("Logger initialized", "level", cfg.Level, "format", cfg.Format)
	return logger, cleanup
}
