package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gerrot/api/internal/queue"
)

// QueueInspector is what the health check reads from the queue.
type QueueInspector interface {
	Probe(ctx context.Context) bool
	Stats(ctx context.Context) (*queue.QueueStats, error)
}

type HealthHandler struct {
	queue           QueueInspector
	storageProvider string
	authConfigured  bool
}

func NewHealthHandler(q QueueInspector, storageProvider string, authConfigured bool) *HealthHandler {
	return &HealthHandler{queue: q, storageProvider: storageProvider, authConfigured: authConfigured}
}

// Check handles GET /health. A dead broker reports "degraded" but still
// answers 200 because renders run in process.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	queueUp := h.queue.Probe(ctx)
	body := fiber.Map{
		"services": fiber.Map{
			"queue":   queueUp,
			"storage": h.storageProvider,
			"auth":    h.authConfigured,
		},
		"timestamp": time.Now().Unix(),
	}

	if queueUp {
		if stats, err := h.queue.Stats(ctx); err == nil {
			body["queue"] = stats
		}
	} else {
		status = "degraded"
	}
	body["status"] = status
	return c.JSON(body)
}
