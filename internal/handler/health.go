package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"wequack/internal/hub"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	hub *hub.Hub
	db  Pinger
}

func NewHealthHandler(h *hub.Hub, db Pinger) *HealthHandler {
	return &HealthHandler{
		hub: h,
		db:  db,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":      "ok",
		"service":     "wequack",
		"connections": h.hub.Count(),
		"store":       "memory",
	}

	if h.db != nil {
		body["store"] = "postgres"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["error"] = "database unreachable"
		}
	}

	c.JSON(status, body)
}
