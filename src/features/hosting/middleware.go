package hosting

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// LogAllRequestsMiddleware logs each request at debug level, or at error level
// when the response status is 400 or above.
func LogAllRequestsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start).String(),
		}
		if status >= fiber.StatusBadRequest {
			slog.Error("HTTP request", append(attrs, "error", err)...)
		} else {
			slog.Debug("HTTP request", attrs...)
		}
		return err
	}
}
