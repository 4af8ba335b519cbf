package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
	"github.com/nimasrn/bigchat/pkg/logger"
)

type HealthService interface {
	Check(ctx context.Context) error
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if err := h.svc.Check(ctx); err != nil {
		logger.Warn("health check failed", "error", err)
		writeJSON(ctx, xhttp.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: time.Now().UTC()})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}
