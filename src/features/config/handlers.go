package config

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Handler serves the effective configuration.
type Handler struct {
	configManager *Manager
}

func NewHandler(configManager *Manager) *Handler {
	return &Handler{configManager: configManager}
}

// GetConfig writes the redacted configuration as YAML, or as JSON with ?fmt=json.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	format := c.Query("fmt", "yaml")
	slog.Debug("GetConfig handler called", "format", format)

	var body, contentType string
	switch format {
	case "yaml":
		body, contentType = h.configManager.GetYAML(), "text/yaml"
	case "json":
		body, contentType = h.configManager.GetJSON(), fiber.MIMEApplicationJSON
	default:
		return c.Status(fiber.StatusBadRequest).SendString("Invalid format. Use 'json' or 'yaml'")
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.SendString(body)
}
