package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type StaffService interface {
	Create(ctx context.Context, p model.Principal, req model.StaffCreateRequest) (*model.StaffUser, error)
	List(ctx context.Context, p model.Principal) ([]*model.StaffUser, error)
}

type UserHandler struct {
	svc StaffService
}

func NewUserHandler(svc StaffService) *UserHandler {
	return &UserHandler{svc: svc}
}

func RegisterUserRoutes(e *router.Group, g *Guard, h *UserHandler) {
	e.GET("/users", g.Require(h.List))
	e.POST("/users", g.Require(h.Create))
}

func (h *UserHandler) List(ctx *xhttp.RequestCtx) {
	users, err := h.svc.List(ctx, principal(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, nonNil(users))
}

func (h *UserHandler) Create(ctx *xhttp.RequestCtx) {
	var req model.StaffCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	u, err := h.svc.Create(ctx, principal(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, u)
}
