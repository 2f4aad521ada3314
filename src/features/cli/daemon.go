package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/contre95/csvinserter/src/features/config"
	"github.com/contre95/csvinserter/src/features/hosting"
	"github.com/contre95/csvinserter/src/features/ingesting"
	"github.com/contre95/csvinserter/src/features/logging"
	"github.com/contre95/csvinserter/src/features/metrics"
	"github.com/contre95/csvinserter/src/infra/clickhouse"
	"github.com/contre95/csvinserter/src/infra/database"
	"github.com/contre95/csvinserter/src/infra/files"
	"github.com/contre95/csvinserter/src/infra/notify"
	"github.com/contre95/csvinserter/src/infra/queue"
	"github.com/contre95/csvinserter/src/infra/watcher"
)

const pingTimeout = 5 * time.Second

// run wires the daemon and blocks until SIGINT/SIGTERM or until ctx is done.
func run(parent context.Context, cfg *config.Config) error {
	logger, closeLog := logging.SetupLogger(cfg.Logger)
	slog.SetDefault(logger)
	defer closeLog()

	cfgManager := config.NewManager(cfg)
	slog.Debug("Effective configuration", "config", cfgManager.GetJSON())

	disposer, err := newDisposer(cfg.Disposal)
	if err != nil {
		return startupError("invalid disposal policy", err)
	}

	inserter, err := clickhouse.NewInserter(clickhouse.Options{
		URL:         cfg.ClickHouse.URL,
		Database:    cfg.ClickHouse.Database,
		User:        cfg.ClickHouse.User,
		Password:    cfg.ClickHouse.Password,
		Table:       cfg.Insert.Table,
		Fields:      cfg.Fields(),
		HasHeader:   cfg.HasHeader(),
		AsyncInsert: cfg.Insert.AsyncInsert,
		Timeout:     cfg.ClickHouse.Timeout,
	})
	if err != nil {
		return startupError("invalid clickhouse settings", err)
	}
	slog.Info("Insert statement prepared", "statement", inserter.Statement())
	pingCtx, cancelPing := context.WithTimeout(parent, pingTimeout)
	if err := inserter.Ping(pingCtx); err != nil {
		slog.Warn("ClickHouse is not reachable yet, inserts will fail until it is", "url", cfg.ClickHouse.URL, "error", err)
	}
	cancelPing()

	eventQueue := queue.NewInMemoryQueue()
	collector := metrics.NewCollector(eventQueue.Len)
	opts := []ingesting.Option{ingesting.WithObserver(collector)}

	var history hosting.HistoryReader
	if cfg.History.Enabled {
		h, err := database.NewSqliteHistory(cfg.History.Path)
		if err != nil {
			return startupError("failed to open history", err)
		}
		defer h.Close()
		history = h
		opts = append(opts, ingesting.WithRecorder(h))
		slog.Info("Ingestion history enabled", "path", cfg.History.Path)
	}

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
		if err != nil {
			slog.Error("Failed to initialize Telegram notifier", "error", err)
		} else {
			defer notifier.Stop()
			opts = append(opts, ingesting.WithNotifier(notifier))
		}
	}

	service := ingesting.NewService(eventQueue, inserter, disposer, opts...)

	var server *hosting.Server
	if cfg.Server.Enabled {
		server = hosting.NewServer(cfgManager, collector.Registry(), history)
		go func() {
			if err := server.Start(); err != nil {
				slog.Error("Status server stopped", "error", err)
			}
		}()
		slog.Info("Status server started", "address", cfg.Server.Address)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileWatcher, err := watcher.NewWatcher(eventQueue, collector, watcher.Options{
		Backend: cfg.Watcher.Backend,
		Settle:  cfg.Watcher.Settle,
		Buffer:  cfg.Watcher.Buffer,
	})
	if err != nil {
		return startupError("failed to create watcher", err)
	}
	if err := fileWatcher.Start(ctx, cfg.WatchDir); err != nil {
		return startupError("failed to start watcher", err)
	}

	// the watcher stops first so nothing is pushed once the loop is gone
	go func() {
		<-ctx.Done()
		slog.Info("Shutting down...")
		fileWatcher.Stop()
	}()

	runErr := service.Run(ctx)
	fileWatcher.Stop()

	if server != nil {
		if err := server.Shutdown(); err != nil {
			slog.Error("Failed to shut down status server", "error", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("Stopped")
	return nil
}

func newDisposer(cfg config.Disposal) (*files.Disposer, error) {
	onSuccess, err := files.ParseAction(cfg.OnSuccess)
	if err != nil {
		return nil, err
	}
	onError, err := files.ParseAction(cfg.OnError)
	if err != nil {
		return nil, err
	}
	return files.NewDisposer(
		files.Policy{Action: onSuccess, Dir: cfg.SuccessDir},
		files.Policy{Action: onError, Dir: cfg.ErrorDir},
	)
}
