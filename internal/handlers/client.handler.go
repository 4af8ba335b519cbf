package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type ClientService interface {
	Create(ctx context.Context, p model.Principal, req model.ClientCreateRequest) (*model.Client, error)
	Get(ctx context.Context, p model.Principal, id string) (*model.Client, error)
	Me(ctx context.Context, p model.Principal) (*model.Client, error)
	List(ctx context.Context, p model.Principal, page, limit int) ([]*model.Client, int64, error)
	Update(ctx context.Context, p model.Principal, id string, req model.ClientUpdateRequest) (*model.Client, error)
}

type LedgerService interface {
	Credit(ctx context.Context, p model.Principal, clientID string, amount model.Cents) (*model.Transaction, error)
	Transactions(ctx context.Context, p model.Principal, clientID string, page, limit int) ([]*model.Transaction, int64, error)
}

type ClientHandler struct {
	clients ClientService
	ledger  LedgerService
}

func NewClientHandler(clients ClientService, ledger LedgerService) *ClientHandler {
	return &ClientHandler{clients: clients, ledger: ledger}
}

func RegisterClientRoutes(e *router.Group, g *Guard, h *ClientHandler) {
	e.GET("/clients", g.Require(h.List))
	e.GET("/clients/me", g.Require(h.Me))
	e.POST("/clients", g.Require(h.Create))
	e.GET("/clients/{id}", g.Require(h.Get))
	e.PUT("/clients/{id}", g.Require(h.Update))
	e.POST("/clients/{id}/credit", g.Require(h.Credit))
	e.GET("/clients/{id}/transactions", g.Require(h.Transactions))
}

const msgClientNotFound = "client not found"

func (h *ClientHandler) List(ctx *xhttp.RequestCtx) {
	items, total, err := h.clients.List(ctx, principal(ctx), queryInt(ctx, "page"), queryInt(ctx, "limit"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Client]{Items: nonNil(items), Total: total})
}

func (h *ClientHandler) Me(ctx *xhttp.RequestCtx) {
	c, err := h.clients.Me(ctx, principal(ctx))
	if err != nil {
		writeResourceError(ctx, err, msgClientNotFound)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *ClientHandler) Get(ctx *xhttp.RequestCtx) {
	c, err := h.clients.Get(ctx, principal(ctx), pathParam(ctx, "id"))
	if err != nil {
		writeResourceError(ctx, err, msgClientNotFound)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *ClientHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.ClientCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.clients.Create(ctx, principal(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, c)
}

func (h *ClientHandler) Update(ctx *xhttp.RequestCtx) {
	var req model.ClientUpdateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.clients.Update(ctx, principal(ctx), pathParam(ctx, "id"), req)
	if err != nil {
		writeResourceError(ctx, err, msgClientNotFound)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *ClientHandler) Credit(ctx *xhttp.RequestCtx) {
	var req model.CreditRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	tx, err := h.ledger.Credit(ctx, principal(ctx), pathParam(ctx, "id"), req.Amount)
	if err != nil {
		writeResourceError(ctx, err, msgClientNotFound)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, tx)
}

func (h *ClientHandler) Transactions(ctx *xhttp.RequestCtx) {
	items, total, err := h.ledger.Transactions(ctx, principal(ctx), pathParam(ctx, "id"), queryInt(ctx, "page"), queryInt(ctx, "limit"))
	if err != nil {
		writeResourceError(ctx, err, msgClientNotFound)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Transaction]{Items: nonNil(items), Total: total})
}
