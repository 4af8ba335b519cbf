package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type ConversationService interface {
	Create(ctx context.Context, p model.Principal, req model.ConversationCreateRequest) (*model.Conversation, error)
	Get(ctx context.Context, p model.Principal, id string) (*model.Conversation, error)
	List(ctx context.Context, p model.Principal) ([]*model.Conversation, error)
	ListAll(ctx context.Context, p model.Principal) ([]*model.Conversation, error)
	Update(ctx context.Context, p model.Principal, id string, req model.ConversationUpdateRequest) (*model.Conversation, error)
	Archive(ctx context.Context, p model.Principal, id string) error
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func RegisterConversationRoutes(e *router.Group, g *Guard, h *ConversationHandler) {
	e.GET("/conversations", g.Require(h.List))
	e.GET("/conversations/admin", g.Require(h.ListAll))
	e.POST("/conversations", g.Require(h.Create))
	e.GET("/conversations/{id}", g.Require(h.Get))
	e.PATCH("/conversations/{id}", g.Require(h.Update))
	e.DELETE("/conversations/{id}", g.Require(h.Archive))
}

func (h *ConversationHandler) List(ctx *xhttp.RequestCtx) {
	items, err := h.svc.List(ctx, principal(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, nonNil(items))
}

func (h *ConversationHandler) ListAll(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListAll(ctx, principal(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, nonNil(items))
}

func (h *ConversationHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.ConversationCreateRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
			return
		}
	}
	conv, err := h.svc.Create(ctx, principal(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, conv)
}

func (h *ConversationHandler) Get(ctx *xhttp.RequestCtx) {
	conv, err := h.svc.Get(ctx, principal(ctx), pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, conv)
}

func (h *ConversationHandler) Update(ctx *xhttp.RequestCtx) {
	var req model.ConversationUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	conv, err := h.svc.Update(ctx, principal(ctx), pathParam(ctx, "id"), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, conv)
}

func (h *ConversationHandler) Archive(ctx *xhttp.RequestCtx) {
	if err := h.svc.Archive(ctx, principal(ctx), pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]bool{"success": true})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
