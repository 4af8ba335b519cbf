package handlers

import (
	"github.com/fasthttp/router"
	"github.com/nimasrn/bigchat/internal/model"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type MessagePrices struct {
	Normal model.Cents `json:"normal"`
	Urgent model.Cents `json:"urgent"`
}

type PublicConfig struct {
	ApiUrl        string        `json:"apiUrl"`
	MessagePrices MessagePrices `json:"messagePrices"`
}

type ConfigHandler struct {
	cfg PublicConfig
}

func NewConfigHandler(cfg PublicConfig) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func RegisterConfigRoutes(e *router.Group, h *ConfigHandler) {
	e.GET("/config", h.GetConfig)
}

func (h *ConfigHandler) GetConfig(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, h.cfg)
}
