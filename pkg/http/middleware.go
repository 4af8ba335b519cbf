package xhttp

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

var skipPaths = []string{"/api/health", "/health", "/metrics"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

// CompressMiddleware compresses responses with brotli, gzip or deflate,
// whichever the client accepts first in that order.
func CompressMiddleware(next RequestHandler) RequestHandler {
	return fasthttp.CompressHandlerBrotliLevel(next, fasthttp.CompressBrotliDefaultCompression, fasthttp.CompressDefaultCompression)
}

// CORSMiddleware answers preflight requests itself and decorates every other
// response. An empty origin list allows any origin.
func CORSMiddleware(allowOrigins ...string) MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" {
				if _, ok := allowed[origin]; ok || len(allowed) == 0 {
					ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
					ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
					ctx.Response.Header.Set("Vary", "Origin")
				}
			}
			if ctx.IsOptions() {
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Request-Id")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.SetStatusCode(StatusNoContent)
				return
			}
			next(ctx)
		}
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("[xhttp] panic recovered", "error", err, "path", string(ctx.Path()))
				jsonError(ctx, StatusInternalServerError, StatusText(StatusInternalServerError))
			}
		}()
		next(ctx)
	}
}

// RequestIDMiddleware makes sure every request carries an X-Request-Id and
// echoes it back.
func RequestIDMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		rid := requestID(ctx)
		if rid == "" {
			rid = uuid.NewString()
			ctx.Request.Header.Set("X-Request-Id", rid)
		}
		ctx.Response.Header.Set("X-Request-Id", rid)
		next(ctx)
	}
}

func RequestLoggerMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ctx.RemoteIP().String(),
			"request_id", requestID(ctx),
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if v := ctx.Request.Header.Peek("X-Request-Id"); len(v) > 0 {
		return string(v)
	}
	return ""
}

func jsonError(ctx *RequestCtx, status int, msg string) {
	b, _ := json.Marshal(map[string]string{"error": msg})
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}
