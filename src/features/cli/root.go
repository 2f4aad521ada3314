package cli

import (
	"context"
	"fmt"

	"github.com/contre95/csvinserter/src/features/config"
	"github.com/spf13/cobra"
)

// flags mirrors every option that can be set on the command line. Only flags
// explicitly passed override the file and the environment.
type flags struct {
	configPath  string
	watchDir    string
	url         string
	database    string
	table       string
	user        string
	password    string
	onSuccess   string
	successDir  string
	onError     string
	errorDir    string
	fields      string
	noHeader    bool
	asyncInsert bool
	backend     string
	logLevel    string
	logFormat   string
}

// NewRootCmd builds the csvinserter command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(run)
}

func newRootCmd(daemon func(context.Context, *config.Config) error) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "csvinserter",
		Short: "Load CSV files dropped in a directory into ClickHouse",
		Long: `csvinserter watches a directory for CSV files that were closed after writing
and inserts each one into a ClickHouse table, one file at a time. Loaded files
are removed or moved to success_dir; files that fail are removed or moved to
error_dir.

Settings are read from the YAML file given with --config, then from a .env file
and CSVINSERTER_* environment variables, then from flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return daemon(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML configuration file")
	fs.StringVar(&f.watchDir, "watch-dir", "", "Directory to watch for CSV files")
	fs.StringVar(&f.url, "clickhouse-url", "", "ClickHouse HTTP endpoint, e.g. http://localhost:8123")
	fs.StringVar(&f.database, "database", "", "ClickHouse database")
	fs.StringVar(&f.table, "table", "", "Target table")
	fs.StringVar(&f.user, "user", "", "ClickHouse user")
	fs.StringVar(&f.password, "password", "", "ClickHouse password")
	fs.StringVar(&f.onSuccess, "on-success", "", "What to do with loaded files: remove or move")
	fs.StringVar(&f.successDir, "success-dir", "", "Destination of loaded files when --on-success=move")
	fs.StringVar(&f.onError, "on-error", "", "What to do with failed files: remove or move")
	fs.StringVar(&f.errorDir, "error-dir", "", "Destination of failed files when --on-error=move")
	fs.StringVar(&f.fields, "fields", "", "Comma-separated list of columns present in the files")
	fs.BoolVar(&f.noHeader, "no-header", false, "Files have no header row")
	fs.BoolVar(&f.asyncInsert, "async-insert", false, "Use ClickHouse asynchronous inserts")
	fs.StringVar(&f.backend, "watcher", "", "Notification backend: auto, inotify or fsnotify")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text, json or logfmt")

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig layers defaults, file, environment and flags, then validates and
// canonicalises the result.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	strFlags := []struct {
		name string
		src  string
		dst  *string
	}{
		{"watch-dir", f.watchDir, &cfg.WatchDir},
		{"clickhouse-url", f.url, &cfg.ClickHouse.URL},
		{"database", f.database, &cfg.ClickHouse.Database},
		{"table", f.table, &cfg.Insert.Table},
		{"user", f.user, &cfg.ClickHouse.User},
		{"password", f.password, &cfg.ClickHouse.Password},
		{"on-success", f.onSuccess, &cfg.Disposal.OnSuccess},
		{"success-dir", f.successDir, &cfg.Disposal.SuccessDir},
		{"on-error", f.onError, &cfg.Disposal.OnError},
		{"error-dir", f.errorDir, &cfg.Disposal.ErrorDir},
		{"fields", f.fields, &cfg.Insert.Fields},
		{"watcher", f.backend, &cfg.Watcher.Backend},
		{"log-level", f.logLevel, &cfg.Logger.Level},
		{"log-format", f.logFormat, &cfg.Logger.Format},
	}
	for _, fl := range strFlags {
		if changed(fl.name) {
			*fl.dst = fl.src
		}
	}
	if changed("no-header") {
		cfg.Insert.NoHeader = f.noHeader
	}
	if changed("async-insert") {
		cfg.Insert.AsyncInsert = f.asyncInsert
	}
}

func startupError(step string, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
