package handlers

import (
	"encoding/json"
	"strconv"

	xhttp "github.com/nimasrn/bigchat/pkg/http"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg, Code: code})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// queryInt returns 0 when the parameter is missing or malformed, which the
// services treat as "use the default".
func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, err := strconv.Atoi(query(ctx, key))
	if err != nil {
		return 0
	}
	return n
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page,omitempty"`
	Limit int   `json:"limit,omitempty"`
}
