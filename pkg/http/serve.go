package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

// ServerOption holds the knobs we actually tune. Everything else keeps the
// fasthttp default.
type ServerOption struct {
	Name string

	// keep idle keep-alive connections short, the SPA polls every few seconds
	// and long idle sockets only eat file descriptors
	IdleTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	ReadBufferSize  int
	WriteBufferSize int

	// chat payloads are small, anything above this is rejected outright
	MaxRequestBodySize int

	Concurrency   int
	MaxConnsPerIP int
}

var DefaultServerOption = ServerOption{
	Name:               "bigchat",
	IdleTimeout:        10 * time.Second,
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       5 * time.Second,
	ReadBufferSize:     4 * 1024,
	WriteBufferSize:    4 * 1024,
	MaxRequestBodySize: 1 * 1024 * 1024,
	Concurrency:        30_000,
	MaxConnsPerIP:      10_000,
}

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	return &fasthttp.Server{
		Name:                          options.Name,
		Concurrency:                   options.Concurrency,
		ReadBufferSize:                options.ReadBufferSize,
		WriteBufferSize:               options.WriteBufferSize,
		ReadTimeout:                   options.ReadTimeout,
		WriteTimeout:                  options.WriteTimeout,
		IdleTimeout:                   options.IdleTimeout,
		MaxConnsPerIP:                 options.MaxConnsPerIP,
		MaxRequestBodySize:            options.MaxRequestBodySize,
		TCPKeepalive:                  true,
		DisablePreParseMultipartForm:  true,
		NoDefaultServerHeader:         true,
		NoDefaultContentType:          true,
		CloseOnShutdown:               true,
		DisableHeaderNamesNormalizing: false,
		Logger:                        logger.GetLogger(),
		ErrorHandler: func(ctx *RequestCtx, err error) {
			logger.Warn("[xhttp] request error", "error", err, "ip", ctx.RemoteIP().String())
		},
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	logger.Info("[xhttp] server is listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router as the server handler and wraps it in the
// registered middleware. The first middleware passed to Use runs first.
func (e *Engine) DoRouting() {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			logger.Debug("[xhttp] route", "method", method, "path", r)
		}
	}
	handler := e.Router.Handler
	chain := slices.Clone(e.middle)
	slices.Reverse(chain)
	for _, m := range chain {
		handler = m(handler)
		logger.Debug("[xhttp] middleware registered", "name", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	e.Server.Handler = handler
}

// Handler returns the fully wrapped handler, mostly for tests.
func (e *Engine) Handler() RequestHandler {
	e.DoRouting()
	return e.Server.Handler
}

// Use adds middleware to the chain which is run for every request.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown gracefully shuts down the server without interrupting any active connections.
func (e *Engine) Shutdown() {
	logger.Info("[xhttp] server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		logger.Error("[xhttp] error while shutting down", "error", err)
	}
}
