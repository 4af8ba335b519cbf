package handlers

import (
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

const principalKey = "principal"

type Authenticator interface {
	Authenticate(token string) (model.Principal, error)
}

// Guard wraps handlers that need a caller. The decoded principal is stored
// on the request.
type Guard struct {
	auth Authenticator
}

func NewGuard(a Authenticator) *Guard {
	return &Guard{auth: a}
}

func (g *Guard) Require(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		header := string(ctx.Request.Header.Peek("Authorization"))
		p, err := g.auth.Authenticate(header)
		if err != nil {
			writeError(ctx, xhttp.StatusUnauthorized, CodeUnauthenticated, "authentication required")
			return
		}
		ctx.SetUserValue(principalKey, p)
		next(ctx)
	}
}

func principal(ctx *xhttp.RequestCtx) model.Principal {
	p, _ := ctx.UserValue(principalKey).(model.Principal)
	return p
}
