package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/sethvargo/go-retry"
)

var (
	ErrNotConnected = errors.New("realtime channel not connected")
	ErrRejected     = errors.New("realtime connection rejected")
)

const (
	realtimeWriteWait = 10 * time.Second
	realtimeReadWait  = 70 * time.Second
)

type RealtimeConfig struct {
	// URL of the relay endpoint, e.g. ws://localhost:3001/ws.
	URL string

	// Token is called on every dial so a refreshed credential is picked up.
	Token func() string

	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

func (c *RealtimeConfig) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
}

// Realtime is a reconnecting relay connection. Inbound envelopes go to the
// OnEvent handlers; message_sent frames resolve pending Send calls.
type Realtime struct {
	config RealtimeConfig
	dialer *websocket.Dialer

	connected atomic.Bool
	connMu    sync.Mutex
	conn      *websocket.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	onEvent     []func(model.Envelope)
	onConnect   []func()
	acks        map[string]chan struct{}

	log *logger.ZapLogger
}

func NewRealtime(config RealtimeConfig) *Realtime {
	config.setDefaults()
	return &Realtime{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		acks: make(map[string]chan struct{}),
		log:  logger.Named("realtime"),
	}
}

func (r *Realtime) OnEvent(fn func(model.Envelope)) {
	r.mu.Lock()
	r.onEvent = append(r.onEvent, fn)
	r.mu.Unlock()
}

// OnConnect runs fn after every successful connection, the first included,
// before any inbound frame is dispatched.
func (r *Realtime) OnConnect(fn func()) {
	r.mu.Lock()
	r.onConnect = append(r.onConnect, fn)
	r.mu.Unlock()
}

func (r *Realtime) Connected() bool {
	return r.connected.Load()
}

func (r *Realtime) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.config.ReconnectMin)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(r.config.ReconnectMax, b)
}

// Run keeps the connection up until ctx ends.
func (r *Realtime) Run(ctx context.Context) error {
	backoff := r.newBackoff()
	for {
		conn, err := r.connect(ctx)
		if err == nil {
			backoff = r.newBackoff()
			r.fireConnect()
			err = r.readLoop(ctx, conn)
			r.drop(conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait, _ := backoff.Next()
		r.log.Debug("realtime disconnected, retrying", "in", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Realtime) dialURL() (string, error) {
	u, err := url.Parse(r.config.URL)
	if err != nil {
		return "", err
	}
	if r.config.Token != nil {
		q := u.Query()
		q.Set("token", r.config.Token())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// connect dials and waits for connection_success.
func (r *Realtime) connect(ctx context.Context) (*websocket.Conn, error) {
	target, err := r.dialURL()
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	conn, _, err := r.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(r.config.HandshakeTimeout))
	var env model.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if env.Event != model.EventConnectionSuccess {
		_ = conn.Close()
		var e model.RealtimeError
		_ = json.Unmarshal(env.Data, &e)
		return nil, fmt.Errorf("%w: %s", ErrRejected, e.Message)
	}

	_ = conn.SetReadDeadline(time.Now().Add(realtimeReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(realtimeReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(realtimeWriteWait))
	})

	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()
	r.connected.Store(true)
	r.log.Info("realtime connected")
	return conn, nil
}

func (r *Realtime) drop(conn *websocket.Conn) {
	r.connected.Store(false)
	r.connMu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.connMu.Unlock()
	_ = conn.Close()
}

func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var env model.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(realtimeReadWait))
		if env.Event == model.EventMessageSent {
			r.resolveAck(env.Data)
		}
		r.dispatch(env)
	}
}

func (r *Realtime) dispatch(env model.Envelope) {
	r.mu.Lock()
	handlers := append([]func(model.Envelope){}, r.onEvent...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(env)
	}
}

func (r *Realtime) fireConnect() {
	r.mu.Lock()
	handlers := append([]func(){}, r.onConnect...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (r *Realtime) resolveAck(data json.RawMessage) {
	var sent model.MessageSent
	if err := json.Unmarshal(data, &sent); err != nil || !sent.Success {
		return
	}
	r.mu.Lock()
	ch, ok := r.acks[sent.MessageID]
	if ok {
		delete(r.acks, sent.MessageID)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (r *Realtime) emit(event string, data any) error {
	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()
	if conn == nil || !r.Connected() {
		return ErrNotConnected
	}
	frame, err := model.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (r *Realtime) Join(conversationID string) error {
	return r.emit(model.EventJoinConversation, model.ConversationRef{ConversationID: conversationID})
}

func (r *Realtime) Leave(conversationID string) error {
	return r.emit(model.EventLeaveConversation, model.ConversationRef{ConversationID: conversationID})
}

// Send emits send_message and waits for the matching message_sent or for
// ctx to end.
func (r *Realtime) Send(ctx context.Context, msg model.RealtimeSend) error {
	if msg.MessageID == "" {
		msg.MessageID = "msg-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()[:8]
	}

	ack := make(chan struct{})
	r.mu.Lock()
	r.acks[msg.MessageID] = ack
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, msg.MessageID)
		r.mu.Unlock()
	}()

	if err := r.emit(model.EventSendMessage, msg); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
