// Package gateway provides the HTTP health endpoints for BloodEclipse, used by
// the hosting platform to probe liveness and readiness.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
)

// Config configures the health gateway.
type Config struct {
	// Enabled turns the HTTP server on.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (e.g. ":8080").
	Address string `yaml:"address"`
}

// StatusSource reports channel health. *channels.Manager implements it.
type StatusSource interface {
	HealthAll() map[string]channels.HealthStatus
}

// Gateway is the HTTP health server.
type Gateway struct {
	config    Config
	status    StatusSource
	version   string
	app       *fiber.App
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a new Gateway.
func New(cfg Config, status StatusSource, version string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}

	g := &Gateway{
		config:    cfg,
		status:    status,
		version:   version,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}

	g.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	g.app.Use(recover.New())
	g.app.Get("/health", g.handleHealth)
	g.app.Get("/ready", g.handleReady)

	return g
}

// App exposes the fiber application (used by tests).
func (g *Gateway) App() *fiber.App { return g.app }

// Start starts the HTTP server in the background.
func (g *Gateway) Start(_ context.Context) error {
	g.startedAt = time.Now()

	go func() {
		if err := g.app.Listen(g.config.Address); err != nil {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.config.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("gateway stopping...")
	return g.app.ShutdownWithContext(ctx)
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"version": g.version,
		"uptime":  time.Since(g.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports 200 once at least one channel is connected.
func (g *Gateway) handleReady(c *fiber.Ctx) error {
	var statuses map[string]channels.HealthStatus
	if g.status != nil {
		statuses = g.status.HealthAll()
	}

	ready := false
	for _, s := range statuses {
		if s.Connected {
			ready = true
			break
		}
	}

	code := fiber.StatusOK
	state := "ready"
	if !ready {
		code = fiber.StatusServiceUnavailable
		state = "not_ready"
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   state,
		"channels": statuses,
	})
}
