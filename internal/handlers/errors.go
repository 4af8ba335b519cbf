package handlers

import (
	"errors"

	"github.com/nimasrn/bigchat/internal/services"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
	"github.com/nimasrn/bigchat/pkg/logger"
)

const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeNotFound          = "not_found"
	CodeUnauthenticated   = "unauthenticated"
	CodeForbidden         = "forbidden"
	CodeInvalidInput      = "invalid_input"
	CodeConflict          = "conflict"
	CodeInternal          = "internal_error"

	msgConversationHidden = "conversation not found or not authorized"
)

// writeServiceError maps a service error to a response. On conversation
// resources NotFound and Forbidden are rendered identically so a caller
// cannot discover ids it does not own.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrForbidden):
		writeError(ctx, xhttp.StatusNotFound, CodeNotFound, msgConversationHidden)
	case errors.Is(err, services.ErrInsufficientFunds):
		writeError(ctx, xhttp.StatusPaymentRequired, CodeInsufficientFunds, "insufficient balance")
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthenticated, "invalid credentials")
	case errors.Is(err, services.ErrPermissionDenied):
		writeError(ctx, xhttp.StatusForbidden, CodeForbidden, "permission denied")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(ctx, xhttp.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, services.ErrConflict):
		writeError(ctx, xhttp.StatusConflict, CodeConflict, "resource already exists")
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "method", string(ctx.Method()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, CodeInternal, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

// writeResourceError is writeServiceError for non-conversation resources,
// where a missing record is a plain 404.
func writeResourceError(ctx *xhttp.RequestCtx, err error, notFound string) {
	if errors.Is(err, services.ErrNotFound) {
		writeError(ctx, xhttp.StatusNotFound, CodeNotFound, notFound)
		return
	}
	writeServiceError(ctx, err)
}
