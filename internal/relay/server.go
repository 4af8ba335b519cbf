package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/prom"
)

const Path = "/ws"

type Authenticator interface {
	Authenticate(token string) (model.Principal, error)
}

// Conversations answers the two questions the relay asks about a
// conversation. services.ConversationService implements it.
type Conversations interface {
	CanJoin(ctx context.Context, p model.Principal, id string) (bool, error)
	OwnerOf(ctx context.Context, id string) (string, error)
}

type ServerOption struct {
	// AuthorizeJoins rejects join and send for conversations the caller
	// does not own. Staff always pass.
	AuthorizeJoins bool

	// AllowedOrigins restricts the upgrade by Origin header. Empty allows
	// every origin.
	AllowedOrigins []string

	// LookupTimeout bounds each conversation lookup.
	LookupTimeout time.Duration
}

var DefaultServerOption = ServerOption{
	AuthorizeJoins: true,
	LookupTimeout:  3 * time.Second,
}

// Server upgrades HTTP requests on Path and runs one Session per
// connection. It persists nothing.
type Server struct {
	hub           *Hub
	auth          Authenticator
	conversations Conversations
	option        ServerOption
	upgrader      websocket.Upgrader
	now           func() time.Time
	log           *logger.ZapLogger
}

func NewServer(hub *Hub, auth Authenticator, conversations Conversations, option ServerOption) *Server {
	if option.LookupTimeout <= 0 {
		option.LookupTimeout = DefaultServerOption.LookupTimeout
	}
	s := &Server{
		hub:           hub,
		auth:          auth,
		conversations: conversations,
		option:        option,
		now:           time.Now,
		log:           logger.Named("relay"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.option.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.option.AllowedOrigins, origin)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts the listener
// down and closes open sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", "addr", addr, "path", Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return r.Header.Get("Authorization")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("relay upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	token := tokenFrom(r)
	p, err := s.authenticate(token)
	if err != nil {
		s.reject(conn, err)
		return
	}

	sess := newSession(conn, p, token)
	if p.IsStaff() {
		s.hub.Join(RoomAdmin, sess)
	} else {
		s.hub.Join(ClientRoom(p.ID), sess)
	}
	s.hub.Join(RoomAllUsers, sess)

	prom.RelaySessionDelta(string(p.Type), 1)
	s.log.Info("relay session opened", "user_id", p.ID, "user_type", p.Type)

	sess.Emit(model.EventConnectionSuccess, model.ConnectionSuccess{
		Message:  "connected",
		UserID:   p.ID,
		UserType: p.Type,
	})

	go sess.writePump()
	sess.readPump(s.handle)

	s.hub.Remove(sess)
	prom.RelaySessionDelta(string(p.Type), -1)
	s.log.Info("relay session closed", "user_id", p.ID, "user_type", p.Type)
}

func (s *Server) authenticate(token string) (model.Principal, error) {
	if strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")) == "" {
		return model.Principal{}, ErrMissingToken
	}
	return s.auth.Authenticate(token)
}

// reject writes connection_error straight to the socket and closes it. The
// pumps never start for a rejected connection.
func (s *Server) reject(conn *websocket.Conn, reason error) {
	msg := "invalid or expired token"
	if errors.Is(reason, ErrMissingToken) {
		msg = reason.Error()
	}
	s.log.Warn("relay connection rejected", "remote", conn.RemoteAddr().String(), "error", reason)

	if frame, err := model.NewEnvelope(model.EventConnectionError, model.RealtimeError{Message: msg}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

func (s *Server) handle(sess *Session, env model.Envelope) {
	prom.RelayEvent(env.Event)
	switch env.Event {
	case model.EventJoinConversation:
		s.join(sess, env.Data)
	case model.EventLeaveConversation:
		s.leave(sess, env.Data)
	case model.EventSendMessage:
		s.sendMessage(sess, env.Data)
	default:
		sess.Emit(model.EventError, model.RealtimeError{Message: "unknown event " + env.Event})
	}
}

func (s *Server) lookupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.option.LookupTimeout)
}

func (s *Server) allowed(p model.Principal, conversationID string) (bool, error) {
	if !s.option.AuthorizeJoins {
		return true, nil
	}
	ctx, cancel := s.lookupContext()
	defer cancel()
	return s.conversations.CanJoin(ctx, p, conversationID)
}

func (s *Server) join(sess *Session, data json.RawMessage) {
	var req model.ConversationRef
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		sess.Emit(model.EventError, model.RealtimeError{Message: "conversationId is required"})
		return
	}

	p := sess.Principal()
	ok, err := s.allowed(p, req.ConversationID)
	if err != nil {
		s.log.Error("relay join lookup failed", "conversation_id", req.ConversationID, "error", err)
		sess.Emit(model.EventError, model.RealtimeError{Message: "failed to join conversation"})
		return
	}
	if !ok {
		sess.Emit(model.EventError, model.RealtimeError{Message: "conversation not found or not authorized"})
		return
	}

	room := ConversationRoom(req.ConversationID)
	s.hub.Join(room, sess)

	now := s.now()
	s.hub.EmitExcept(room, sess, model.EventUserJoined, model.UserJoined{
		ConversationID: req.ConversationID,
		UserID:         p.ID,
		UserType:       p.Type,
		Timestamp:      now,
	})
	sess.Emit(model.EventJoinedConversation, model.JoinedConversation{
		Success:        true,
		ConversationID: req.ConversationID,
		Timestamp:      now,
	})
	s.log.Debug("relay session joined conversation", "user_id", p.ID, "conversation_id", req.ConversationID)
}

func (s *Server) leave(sess *Session, data json.RawMessage) {
	var req model.ConversationRef
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		sess.Emit(model.EventError, model.RealtimeError{Message: "conversationId is required"})
		return
	}
	s.hub.Leave(ConversationRoom(req.ConversationID), sess)
}

// sendMessage fans a real-time message out to the conversation room and
// to the other side. The credential is decoded again on every send.
func (s *Server) sendMessage(sess *Session, data json.RawMessage) {
	var req model.RealtimeSend
	if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
		sess.Emit(model.EventError, model.RealtimeError{Message: "conversationId is required"})
		return
	}

	token := req.Token
	if token == "" {
		token = sess.token
	}
	p, err := s.authenticate(token)
	if err != nil {
		s.log.Warn("relay send rejected", "conversation_id", req.ConversationID, "error", err)
		sess.Emit(model.EventError, model.RealtimeError{Message: "authentication error: " + err.Error()})
		return
	}

	ok, err := s.allowed(p, req.ConversationID)
	if err != nil || !ok {
		sess.Emit(model.EventError, model.RealtimeError{Message: "conversation not found or not authorized"})
		return
	}

	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	msg := &model.RealtimeMessage{
		ID:             req.MessageID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Priority:       req.Priority,
		SentBy:         model.SenderRef{Sender: p.Sender()},
		Timestamp:      s.now(),
	}
	if msg.ID == "" {
		msg.ID = generateMessageID(msg.Timestamp)
	}

	room := ConversationRoom(req.ConversationID)
	s.hub.EmitExcept(room, sess, model.EventNewMessage, msg)
	s.hub.Emit(room, model.EventMessageReceived, model.MessageReceived{
		MessageID: msg.ID,
		Status:    model.MessageStatusDelivered,
	})
	s.notifyOtherSide(msg, p)
	sess.Emit(model.EventMessageSent, model.MessageSent{
		Success:   true,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
	})
}

// notifyOtherSide sends client_message to staff or admin_message to the
// owning client. Routing failures are logged and dropped.
func (s *Server) notifyOtherSide(msg *model.RealtimeMessage, p model.Principal) {
	if !p.IsStaff() {
		out := *msg
		out.ClientID = p.ID
		s.hub.Emit(RoomAdmin, model.EventClientMessage, &out)
		return
	}

	ctx, cancel := s.lookupContext()
	defer cancel()
	owner, err := s.conversations.OwnerOf(ctx, msg.ConversationID)
	if err != nil {
		prom.RelayDeliveryFailure("owner_lookup")
		s.log.Warn("relay could not route admin message",
			"conversation_id", msg.ConversationID,
			"error", fmt.Errorf("%w: %w", ErrTransientDelivery, err))
		return
	}
	out := *msg
	out.AdminID = p.ID
	s.hub.Emit(ClientRoom(owner), model.EventAdminMessage, &out)
}

func generateMessageID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "msg-" + strconv.FormatInt(t.UnixMilli(), 10) + "-" + suffix
}
