package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type MessageService interface {
	Create(ctx context.Context, p model.Principal, req model.MessageCreateRequest) (*model.Message, error)
	List(ctx context.Context, p model.Principal, conversationID string, page, limit int) (*model.MessagePage, error)
	UpdateStatus(ctx context.Context, p model.Principal, id string, status model.MessageStatus) (*model.Message, error)
}

type MessageHandler struct {
	svc MessageService
}

func NewMessageHandler(messageService MessageService) *MessageHandler {
	return &MessageHandler{svc: messageService}
}

func RegisterMessageRoutes(e *router.Group, g *Guard, h *MessageHandler) {
	e.POST("/messages", g.Require(h.CreateMessage))
	e.POST("/messages/admin", g.Require(h.CreateAdminMessage))
	e.GET("/messages/conversation/{id}", g.Require(h.ListConversationMessages))
	e.PATCH("/messages/{id}/status", g.Require(h.UpdateStatus))
}

func (h *MessageHandler) CreateMessage(ctx *xhttp.RequestCtx) {
	var req model.MessageCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	msg, err := h.svc.Create(ctx, principal(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, msg)
}

// CreateAdminMessage is the staff send path. It is the same operation with
// the caller required to be staff.
func (h *MessageHandler) CreateAdminMessage(ctx *xhttp.RequestCtx) {
	if !principal(ctx).IsStaff() {
		writeError(ctx, xhttp.StatusForbidden, CodeForbidden, "staff only")
		return
	}
	h.CreateMessage(ctx)
}

func (h *MessageHandler) ListConversationMessages(ctx *xhttp.RequestCtx) {
	page, err := h.svc.List(ctx, principal(ctx), pathParam(ctx, "id"), queryInt(ctx, "page"), queryInt(ctx, "limit"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

type updateStatusRequest struct {
	Status model.MessageStatus `json:"status"`
}

func (h *MessageHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	var req updateStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	msg, err := h.svc.UpdateStatus(ctx, principal(ctx), pathParam(ctx, "id"), req.Status)
	if err != nil {
		writeResourceError(ctx, err, "message not found")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, msg)
}
