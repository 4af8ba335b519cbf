package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownToken = errors.New("unknown token")

type stubAuth map[string]model.Principal

func (a stubAuth) Authenticate(token string) (model.Principal, error) {
	p, ok := a[strings.TrimPrefix(token, "Bearer ")]
	if !ok {
		return model.Principal{}, errUnknownToken
	}
	return p, nil
}

// stubConversations maps conversation id to owning client id.
type stubConversations map[string]string

func (c stubConversations) CanJoin(_ context.Context, p model.Principal, id string) (bool, error) {
	if p.IsStaff() {
		return true, nil
	}
	return c[id] == p.ID, nil
}

func (c stubConversations) OwnerOf(_ context.Context, id string) (string, error) {
	owner, ok := c[id]
	if !ok {
		return "", errors.New("conversation not found")
	}
	return owner, nil
}

var (
	alice = model.Principal{ID: "client-alice", Type: model.SenderClient}
	bob   = model.Principal{ID: "client-bob", Type: model.SenderClient}
	agent = model.Principal{ID: "staff-1", Type: model.SenderAdmin, Role: model.RoleSupport}
)

func testAuth() stubAuth {
	return stubAuth{"alice": alice, "bob": bob, "agent": agent}
}

func startServer(t *testing.T, option ServerOption) (*Server, string) {
	t.Helper()
	srv := NewServer(NewHub(), testAuth(), stubConversations{"conv-1": alice.ID}, option)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().CloseAll()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + Path
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// expect reads the next frame, asserts its event name and decodes it.
func expect[T any](t *testing.T, conn *websocket.Conn, event string) T {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := model.NewEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func connect(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn := dial(t, url, token)
	expect[model.ConnectionSuccess](t, conn, model.EventConnectionSuccess)
	return conn
}

func join(t *testing.T, conn *websocket.Conn, conversationID string) {
	t.Helper()
	emit(t, conn, model.EventJoinConversation, model.ConversationRef{ConversationID: conversationID})
	joined := expect[model.JoinedConversation](t, conn, model.EventJoinedConversation)
	require.True(t, joined.Success)
}

func TestServer_RejectsBadCredential(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)

	t.Run("invalid token", func(t *testing.T) {
		conn := dial(t, url, "forged")
		e := expect[model.RealtimeError](t, conn, model.EventConnectionError)
		assert.Equal(t, "invalid or expired token", e.Message)

		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		conn := dial(t, url, "")
		e := expect[model.RealtimeError](t, conn, model.EventConnectionError)
		assert.Equal(t, ErrMissingToken.Error(), e.Message)
	})
}

func TestServer_AcceptsAuthorizationHeader(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)

	header := http.Header{}
	header.Set("Authorization", "Bearer agent")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	ok := expect[model.ConnectionSuccess](t, conn, model.EventConnectionSuccess)
	assert.Equal(t, agent.ID, ok.UserID)
	assert.Equal(t, model.SenderAdmin, ok.UserType)
}

func TestServer_SessionRooms(t *testing.T) {
	srv, url := startServer(t, DefaultServerOption)

	connect(t, url, "alice")
	connect(t, url, "agent")

	assert.Eventually(t, func() bool {
		return srv.Hub().RoomSize(RoomAllUsers) == 2 &&
			srv.Hub().RoomSize(RoomAdmin) == 1 &&
			srv.Hub().RoomSize(ClientRoom(alice.ID)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_ClientSendFansOut(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)

	staff := connect(t, url, "agent")
	join(t, staff, "conv-1")

	client := connect(t, url, "alice")
	join(t, client, "conv-1")

	joined := expect[model.UserJoined](t, staff, model.EventUserJoined)
	assert.Equal(t, alice.ID, joined.UserID)

	emit(t, client, model.EventSendMessage, model.RealtimeSend{
		ConversationID: "conv-1",
		Content:        "hello",
		MessageID:      "tmp-1",
	})

	msg := expect[model.RealtimeMessage](t, staff, model.EventNewMessage)
	assert.Equal(t, "tmp-1", msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, alice.ID, msg.SentBy.ID)
	assert.Equal(t, model.PriorityNormal, msg.Priority)

	rcv := expect[model.MessageReceived](t, staff, model.EventMessageReceived)
	assert.Equal(t, "tmp-1", rcv.MessageID)
	assert.Equal(t, model.MessageStatusDelivered, rcv.Status)

	notice := expect[model.RealtimeMessage](t, staff, model.EventClientMessage)
	assert.Equal(t, alice.ID, notice.ClientID)

	// the sender gets no new_message echo
	expect[model.MessageReceived](t, client, model.EventMessageReceived)
	sent := expect[model.MessageSent](t, client, model.EventMessageSent)
	assert.True(t, sent.Success)
	assert.Equal(t, "tmp-1", sent.MessageID)
}

func TestServer_StaffSendReachesOwner(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)

	client := connect(t, url, "alice")
	staff := connect(t, url, "agent")

	emit(t, staff, model.EventSendMessage, model.RealtimeSend{
		ConversationID: "conv-1",
		Content:        "how can I help?",
		Priority:       model.PriorityUrgent,
	})

	notice := expect[model.RealtimeMessage](t, client, model.EventAdminMessage)
	assert.Equal(t, agent.ID, notice.AdminID)
	assert.Equal(t, model.PriorityUrgent, notice.Priority)
	assert.Regexp(t, regexp.MustCompile(`^msg-\d+-[0-9a-f]{9}$`), notice.ID)

	sent := expect[model.MessageSent](t, staff, model.EventMessageSent)
	assert.Equal(t, notice.ID, sent.MessageID)
}

func TestServer_StaffSendWithUnknownOwnerStillAcks(t *testing.T) {
	option := DefaultServerOption
	option.AuthorizeJoins = false
	_, url := startServer(t, option)

	staff := connect(t, url, "agent")
	emit(t, staff, model.EventSendMessage, model.RealtimeSend{ConversationID: "missing", Content: "x", MessageID: "m1"})

	sent := expect[model.MessageSent](t, staff, model.EventMessageSent)
	assert.Equal(t, "m1", sent.MessageID)
}

func TestServer_JoinAuthorization(t *testing.T) {
	t.Run("stranger is refused", func(t *testing.T) {
		srv, url := startServer(t, DefaultServerOption)
		conn := connect(t, url, "bob")

		emit(t, conn, model.EventJoinConversation, model.ConversationRef{ConversationID: "conv-1"})
		e := expect[model.RealtimeError](t, conn, model.EventError)
		assert.Equal(t, "conversation not found or not authorized", e.Message)
		assert.Equal(t, 0, srv.Hub().RoomSize(ConversationRoom("conv-1")))
	})

	t.Run("open joins when authorization is off", func(t *testing.T) {
		option := DefaultServerOption
		option.AuthorizeJoins = false
		srv, url := startServer(t, option)
		conn := connect(t, url, "bob")

		join(t, conn, "conv-1")
		assert.Equal(t, 1, srv.Hub().RoomSize(ConversationRoom("conv-1")))
	})

	t.Run("missing conversation id", func(t *testing.T) {
		_, url := startServer(t, DefaultServerOption)
		conn := connect(t, url, "alice")

		emit(t, conn, model.EventJoinConversation, map[string]string{})
		expect[model.RealtimeError](t, conn, model.EventError)
	})
}

func TestServer_LeaveConversation(t *testing.T) {
	srv, url := startServer(t, DefaultServerOption)
	conn := connect(t, url, "alice")
	join(t, conn, "conv-1")

	emit(t, conn, model.EventLeaveConversation, model.ConversationRef{ConversationID: "conv-1"})
	assert.Eventually(t, func() bool {
		return srv.Hub().RoomSize(ConversationRoom("conv-1")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServer_SendWithBadTokenKeepsSession(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)
	conn := connect(t, url, "alice")

	emit(t, conn, model.EventSendMessage, model.RealtimeSend{
		ConversationID: "conv-1",
		Content:        "hi",
		Token:          "expired",
	})
	e := expect[model.RealtimeError](t, conn, model.EventError)
	assert.Contains(t, e.Message, "authentication error")

	join(t, conn, "conv-1")
}

func TestServer_UnknownEvent(t *testing.T) {
	_, url := startServer(t, DefaultServerOption)
	conn := connect(t, url, "alice")

	emit(t, conn, "typing", map[string]string{})
	e := expect[model.RealtimeError](t, conn, model.EventError)
	assert.Contains(t, e.Message, "typing")
}

func TestServer_DisconnectLeavesRooms(t *testing.T) {
	srv, url := startServer(t, DefaultServerOption)
	conn := connect(t, url, "alice")
	join(t, conn, "conv-1")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return srv.Hub().RoomSize(ConversationRoom("conv-1")) == 0 &&
			srv.Hub().RoomSize(RoomAllUsers) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
