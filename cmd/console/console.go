package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimasrn/bigchat/internal/chatclient"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/reconciler"
	"github.com/rs/zerolog/log"
)

// Conversation is the part of the reconciler the console drives.
type Conversation interface {
	ConversationID() string
	Timeline() []reconciler.Entry
	Fetches() int64
	Refresh(ctx context.Context) error
	Send(ctx context.Context, content string, priority model.Priority) (*reconciler.SendResult, error)
}

type SendRequest struct {
	Content  string         `json:"content" binding:"required"`
	Priority model.Priority `json:"priority"`
}

type TimelineResponse struct {
	ConversationID string             `json:"conversationId"`
	Connected      bool               `json:"connected"`
	Fetches        int64              `json:"fetches"`
	Entries        []reconciler.Entry `json:"entries"`
}

type Handler struct {
	conv      Conversation
	connected func() bool
}

func NewHandler(conv Conversation, connected func() bool) *Handler {
	if connected == nil {
		connected = func() bool { return false }
	}
	return &Handler{conv: conv, connected: connected}
}

func (h *Handler) Timeline(c *gin.Context) {
	c.JSON(http.StatusOK, TimelineResponse{
		ConversationID: h.conv.ConversationID(),
		Connected:      h.connected(),
		Fetches:        h.conv.Fetches(),
		Entries:        h.conv.Timeline(),
	})
}

func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}

	res, err := h.conv.Send(c.Request.Context(), req.Content, req.Priority)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, chatclient.ErrInsufficientFunds):
			status = http.StatusPaymentRequired
		case errors.Is(err, chatclient.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, chatclient.ErrNotFound), errors.Is(err, chatclient.ErrForbidden):
			status = http.StatusNotFound
		}
		log.Warn().Err(err).Int("status", status).Msg("send failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Refresh(c *gin.Context) {
	if err := h.conv.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.Timeline(c)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": h.connected(),
		"timestamp": time.Now().UTC(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.GET("/timeline", handler.Timeline)
	router.POST("/send", handler.Send)
	router.POST("/refresh", handler.Refresh)
	router.GET("/health", handler.HealthCheck)
	return router
}
