package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// Pinger is satisfied by the repository stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StateCounter reports how many repositories are in each state.
type StateCounter interface {
	Counts() map[models.RepoState]int
}

type HealthHandler struct {
	store   Pinger
	backend string
	repos   StateCounter
}

// NewHealthHandler reports on store, labelled backend ("mongodb" or "memory").
func NewHealthHandler(store Pinger, backend string, repos StateCounter) *HealthHandler {
	return &HealthHandler{
		store:   store,
		backend: backend,
		repos:   repos,
	}
}

func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/health", h.health)
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	storeStatus := h.checkStore(c.UserContext())

	status := fiber.Map{
		"status": "healthy",
		"store": fiber.Map{
			"backend": h.backend,
			"status":  storeStatus,
		},
		"repositories": h.repos.Counts(),
	}
	if storeStatus != "connected" {
		status["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

func (h *HealthHandler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return "error"
	}
	return "connected"
}
