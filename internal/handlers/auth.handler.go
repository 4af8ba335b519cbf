package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type AuthService interface {
	ClientLogin(ctx context.Context, req model.ClientLoginRequest) (*model.AuthResponse, error)
	StaffLogin(ctx context.Context, req model.StaffLoginRequest) (*model.AuthResponse, error)
	Register(ctx context.Context, req model.ClientCreateRequest) (*model.AuthResponse, error)
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func RegisterAuthRoutes(e *router.Group, h *AuthHandler) {
	e.POST("/auth/login", h.Login)
	e.POST("/auth/admin/login", h.AdminLogin)
	e.POST("/auth/register", h.Register)
}

func (h *AuthHandler) Login(ctx *xhttp.RequestCtx) {
	var req model.ClientLoginRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.ClientLogin(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *AuthHandler) AdminLogin(ctx *xhttp.RequestCtx) {
	var req model.StaffLoginRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.StaffLogin(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *AuthHandler) Register(ctx *xhttp.RequestCtx) {
	var req model.ClientCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.Register(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, res)
}
