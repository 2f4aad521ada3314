package hosting

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/contre95/csvinserter/src/features/config"
	"github.com/contre95/csvinserter/src/features/ingesting"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// HistoryReader lists the most recently processed files.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]ingesting.Record, error)
}

// Server is the status HTTP server of the daemon.
type Server struct {
	app     *fiber.App
	address string
}

// NewServer creates the status server. history may be nil when the ledger is disabled.
func NewServer(cfg *config.Manager, gatherer prometheus.Gatherer, history HistoryReader) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("Internal Server Error", "error", err)
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		},
		AppName:               "csvinserter",
		DisableStartupMessage: true,
	})

	app.Use(LogAllRequestsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	app.Get("/history", historyHandler(history))

	config.RegisterRoutes(app, cfg)

	return &Server{app: app, address: cfg.Get().Server.Address}
}

func historyHandler(history HistoryReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if history == nil {
			return c.Status(fiber.StatusNotFound).SendString("History is disabled")
		}
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return c.Status(fiber.StatusBadRequest).SendString("limit must be a positive integer")
			}
			limit = min(n, maxHistoryLimit)
		}
		records, err := history.Recent(c.Context(), limit)
		if err != nil {
			return err
		}
		return c.JSON(records)
	}
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start starts the HTTP server. It blocks until Shutdown is called.
func (s *Server) Start() error {
	return s.app.Listen(s.address)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
