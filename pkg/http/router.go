package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

// NewRouter returns a new Router
func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router with the JSON not-found handler,
// trailing slash redirects and method-not-allowed handling switched on.
// OPTIONS is answered by CORSMiddleware, not the router.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

// NotFoundHandler is the default 404 handler
func NotFoundHandler(ctx *RequestCtx) {
	jsonError(ctx, StatusNotFound, StatusText(StatusNotFound))
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	jsonError(ctx, StatusMethodNotAllowed, StatusText(StatusMethodNotAllowed))
}
