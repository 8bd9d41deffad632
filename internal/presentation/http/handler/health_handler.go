package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/notifier"
)

// HealthHandler reports liveness
type HealthHandler struct {
	service string
	hub     *notifier.Hub
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service string, hub *notifier.Hub) *HealthHandler {
	return &HealthHandler{service: service, hub: hub}
}

// Health returns service status and live subscriber count
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"service":     h.service,
		"subscribers": h.hub.SubscriberCount(),
	})
}
