package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
)

// APIError is a non-2xx answer from the API. errors.Is matches it against
// the sentinels above by status code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInsufficientFunds:
		return e.Status == fasthttp.StatusPaymentRequired
	case ErrNotFound:
		return e.Status == fasthttp.StatusNotFound
	case ErrUnauthenticated:
		return e.Status == fasthttp.StatusUnauthorized
	case ErrForbidden:
		return e.Status == fasthttp.StatusForbidden
	case ErrInvalidInput:
		return e.Status == fasthttp.StatusBadRequest
	}
	return false
}

type Config struct {
	// BaseURL includes the /api prefix, e.g. http://localhost:3000/api.
	BaseURL string

	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int

	// MaxRetries applies to reads only. Message creation is never retried.
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 8 * 1024
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4 * 1024
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
}

// Client talks to the REST API with a bearer token.
type Client struct {
	config Config
	http   *fasthttp.Client

	mu    sync.RWMutex
	token string
}

func NewClient(config Config) *Client {
	config.setDefaults()
	return &Client{
		config: config,
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
		},
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type authResponse struct {
	Token string           `json:"token"`
	Type  model.SenderType `json:"type"`
	User  json.RawMessage  `json:"user"`
}

// Session is the outcome of a login.
type Session struct {
	Token string
	Type  model.SenderType
	ID    string
}

func (c *Client) login(ctx context.Context, path string, body any) (*Session, error) {
	var res authResponse
	if err := c.do(ctx, fasthttp.MethodPost, path, body, &res, false); err != nil {
		return nil, err
	}
	var user struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(res.User, &user)
	c.SetToken(res.Token)
	return &Session{Token: res.Token, Type: res.Type, ID: user.ID}, nil
}

func (c *Client) ClientLogin(ctx context.Context, documentID string, documentType model.DocumentType) (*Session, error) {
	return c.login(ctx, "/auth/login", model.ClientLoginRequest{DocumentID: documentID, DocumentType: documentType})
}

func (c *Client) StaffLogin(ctx context.Context, username, password string) (*Session, error) {
	return c.login(ctx, "/auth/admin/login", model.StaffLoginRequest{Username: username, Password: password})
}

func (c *Client) CreateConversation(ctx context.Context, req model.ConversationCreateRequest) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, fasthttp.MethodPost, "/conversations", req, &conv, false); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	var out []*model.Conversation
	if err := c.do(ctx, fasthttp.MethodGet, "/conversations", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// wireMessage accepts sentBy as an object or a bare id.
type wireMessage struct {
	model.Message
	SentBy model.SenderRef `json:"sentBy"`
}

func (w *wireMessage) toModel() *model.Message {
	m := w.Message
	m.SentBy = w.SentBy.Sender
	return &m
}

type wirePage struct {
	Messages []*wireMessage `json:"messages"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
}

// ListMessages fetches one page, newest first. The server marks the
// returned page read.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (*model.MessagePage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/messages/conversation/" + url.PathEscape(conversationID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res wirePage
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &res, true); err != nil {
		return nil, err
	}
	out := &model.MessagePage{Total: res.Total, Page: res.Page, Limit: res.Limit}
	out.Messages = make([]*model.Message, 0, len(res.Messages))
	for _, w := range res.Messages {
		out.Messages = append(out.Messages, w.toModel())
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, req model.MessageCreateRequest) (*model.Message, error) {
	var res wireMessage
	if err := c.do(ctx, fasthttp.MethodPost, "/messages", req, &res, false); err != nil {
		return nil, err
	}
	return res.toModel(), nil
}

// do sends one JSON request. Idempotent requests are retried on transport
// errors and 5xx answers.
func (c *Client) do(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}

	attempts := 1
	if idempotent {
		attempts += c.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		res, err := c.doRequest(ctx, method, path, payload)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status < 500 {
				return err
			}
			logger.Debug("api request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		if out == nil || len(res) == 0 {
			return nil
		}
		if err := json.Unmarshal(res, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(resp.Body(), &e) == nil {
			apiErr.Message, apiErr.Code = e.Error, e.Code
		} else {
			apiErr.Message = string(resp.Body())
		}
		return nil, apiErr
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}
