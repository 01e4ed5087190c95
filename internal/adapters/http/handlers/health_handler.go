package handlers

import (
	"library-circulation/internal/config"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	appMode string
	ping    func() error
}

// NewHealthHandler creates a new health handler; ping checks the database
func NewHealthHandler(appMode string, ping func() error) *HealthHandler {
	if ping == nil {
		ping = config.HealthCheck
	}
	return &HealthHandler{
		appMode: appMode,
		ping:    ping,
	}
}

// Root handles root endpoint
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "running",
		"message": "🚀 Library Circulation API v1.0 is running",
		"mode":    h.appMode,
	})
}

// HealthCheck reports API and database health
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	overall, dbStatus := "ok", "healthy"
	status := fiber.StatusOK
	if err := h.ping(); err != nil {
		overall, dbStatus = "degraded", "unhealthy"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"api":      "healthy",
			"database": dbStatus,
		},
	})
}

// APIInfo handles API v1 info
func (h *HealthHandler) APIInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Library Circulation API v1.0",
		"version": "1.0.0",
	})
}
