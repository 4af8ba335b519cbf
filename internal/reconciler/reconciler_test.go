package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInsufficientFunds = errors.New("insufficient funds")

type fakeAPI struct {
	mu       sync.Mutex
	messages []*model.Message
	sendErr  error
	listErr  error
	sent     []model.MessageCreateRequest
}

func (f *fakeAPI) ListMessages(_ context.Context, _ string, _, limit int) (*model.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := &model.MessagePage{Total: int64(len(f.messages)), Page: 1, Limit: limit}
	for i := len(f.messages) - 1; i >= 0 && len(page.Messages) < limit; i-- {
		m := *f.messages[i]
		page.Messages = append(page.Messages, &m)
	}
	return page, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, req model.MessageCreateRequest) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	m := &model.Message{
		ID:              "srv-" + req.ClientMessageID,
		ConversationID:  req.ConversationID,
		Content:         req.Content,
		SentBy:          client,
		Timestamp:       t0.Add(time.Duration(len(f.messages)) * time.Second),
		Priority:        req.Priority,
		Status:          model.MessageStatusSent,
		Cost:            25,
		ClientMessageID: req.ClientMessageID,
	}
	f.messages = append(f.messages, m)
	cp := *m
	return &cp, nil
}

func (f *fakeAPI) add(m *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
}

type fakeRealtime struct {
	mu        sync.Mutex
	connected bool
	ack       bool
	joins     []string
	sends     []model.RealtimeSend
}

func (f *fakeRealtime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeRealtime) Join(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conversationID)
	return nil
}

func (f *fakeRealtime) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeRealtime) Send(ctx context.Context, msg model.RealtimeSend) error {
	f.mu.Lock()
	f.sends = append(f.sends, msg)
	ack := f.ack
	f.mu.Unlock()
	if ack {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func fastConfig() Config {
	return Config{
		ConversationID:       "conv-1",
		DisconnectedInterval: 20 * time.Millisecond,
		ConnectedInterval:    time.Hour,
		AckTimeout:           50 * time.Millisecond,
	}
}

func envelope(t *testing.T, event string, data any) model.Envelope {
	t.Helper()
	frame, err := model.NewEnvelope(event, data)
	require.NoError(t, err)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func TestReconciler_SendAppendsAndConfirms(t *testing.T) {
	api := &fakeAPI{}
	rt := &fakeRealtime{connected: true, ack: true}
	r := New(api, rt, fastConfig())

	res, err := r.Send(context.Background(), "hello", model.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, res.RealtimeConfirmed)

	require.Len(t, api.sent, 1)
	ref := api.sent[0].ClientMessageID
	assert.NotEmpty(t, ref)
	require.Len(t, rt.sends, 1)
	assert.Equal(t, ref, rt.sends[0].MessageID)

	got := r.Timeline()
	require.Len(t, got, 1)
	assert.Equal(t, "srv-"+ref, got[0].ID)
	assert.False(t, got[0].Provisional)
}

func TestReconciler_SendAckTimeoutIsNotAnError(t *testing.T) {
	rt := &fakeRealtime{connected: true}
	r := New(&fakeAPI{}, rt, fastConfig())

	start := time.Now()
	res, err := r.Send(context.Background(), "hello", model.PriorityUrgent)
	require.NoError(t, err)
	assert.False(t, res.RealtimeConfirmed)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, r.Timeline(), 1)
}

func TestReconciler_SendWhileDisconnected(t *testing.T) {
	rt := &fakeRealtime{}
	r := New(&fakeAPI{}, rt, fastConfig())

	res, err := r.Send(context.Background(), "hello", model.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, res.RealtimeConfirmed)
	assert.Empty(t, rt.sends)
}

func TestReconciler_SendFailureSurfaces(t *testing.T) {
	api := &fakeAPI{sendErr: errInsufficientFunds}
	rt := &fakeRealtime{connected: true, ack: true}
	r := New(api, rt, fastConfig())

	_, err := r.Send(context.Background(), "hello", model.PriorityNormal)
	assert.ErrorIs(t, err, errInsufficientFunds)
	assert.Empty(t, r.Timeline())
	assert.Empty(t, rt.sends)
}

func TestReconciler_PushThenStoreYieldsOneEntry(t *testing.T) {
	api := &fakeAPI{}
	r := New(api, &fakeRealtime{connected: true, ack: true}, fastConfig())

	// the relay echo of our own send can arrive before the REST response
	r.HandleEvent(envelope(t, model.EventNewMessage, model.RealtimeMessage{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Content:        "hello",
		SentBy:         model.SenderRef{Sender: client},
		Timestamp:      t0.Add(100 * time.Millisecond),
	}))
	require.Len(t, r.Timeline(), 1)

	_, err := r.Send(context.Background(), "hello", model.PriorityNormal)
	require.NoError(t, err)

	got := r.Timeline()
	require.Len(t, got, 1)
	assert.False(t, got[0].Provisional)
}

func TestReconciler_CollapsesRelayEvents(t *testing.T) {
	r := New(&fakeAPI{}, nil, fastConfig())
	msg := model.RealtimeMessage{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Content:        "hi",
		SentBy:         model.SenderRef{Sender: staff},
		Timestamp:      t0,
	}

	var changes int
	r.OnChange(func([]Entry) { changes++ })

	r.HandleEvent(envelope(t, model.EventNewMessage, msg))
	msg.AdminID = staff.ID
	r.HandleEvent(envelope(t, model.EventAdminMessage, msg))
	r.HandleEvent(envelope(t, model.EventMessageReceived, model.MessageReceived{MessageID: "msg-1", Status: model.MessageStatusDelivered}))

	got := r.Timeline()
	require.Len(t, got, 1)
	assert.Equal(t, model.MessageStatusDelivered, got[0].Status)
	assert.Equal(t, 2, changes)
}

func TestReconciler_IgnoresOtherConversations(t *testing.T) {
	r := New(&fakeAPI{}, nil, fastConfig())
	r.HandleEvent(envelope(t, model.EventNewMessage, model.RealtimeMessage{ID: "x", ConversationID: "conv-2", Content: "hi"}))
	r.HandleEvent(envelope(t, model.EventUserJoined, model.UserJoined{ConversationID: "conv-1"}))
	r.HandleEvent(model.Envelope{Event: model.EventNewMessage, Data: []byte(`{`)})
	assert.Empty(t, r.Timeline())
}

func TestReconciler_RunFetchesOnActivation(t *testing.T) {
	api := &fakeAPI{}
	api.add(&model.Message{ID: "m1", ConversationID: "conv-1", Content: "old", SentBy: staff, Timestamp: t0})
	rt := &fakeRealtime{connected: true}

	cfg := fastConfig()
	cfg.DisconnectedInterval = time.Hour
	r := New(api, rt, cfg)

	// pushes already filled the view, the fetch still happens
	r.HandleEvent(envelope(t, model.EventNewMessage, model.RealtimeMessage{ID: "m1", ConversationID: "conv-1", Content: "old", Timestamp: t0}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.Fetches() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rt.joinCount())
	assert.Eventually(t, func() bool {
		tl := r.Timeline()
		return len(tl) == 1 && !tl[0].Provisional
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReconciler_PollsWhileDisconnected(t *testing.T) {
	api := &fakeAPI{}
	rt := &fakeRealtime{}
	r := New(api, rt, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	api.add(&model.Message{ID: "m1", ConversationID: "conv-1", Content: "missed", SentBy: staff, Timestamp: t0})

	assert.Eventually(t, func() bool { return len(r.Timeline()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return r.Fetches() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, rt.joinCount())
}

func TestReconciler_PollIntervals(t *testing.T) {
	rt := &fakeRealtime{}
	r := New(&fakeAPI{}, rt, Config{ConversationID: "conv-1"})

	assert.Equal(t, 3*time.Second, r.PollInterval())

	rt.setConnected(true)
	assert.Equal(t, 3*time.Second, r.PollInterval(), "empty view polls fast")

	r.timeline.Merge(stored("m1", "", "hi", t0))
	assert.Equal(t, 10*time.Second, r.PollInterval())

	rt.setConnected(false)
	assert.Equal(t, 3*time.Second, r.PollInterval())
}

func TestReconciler_ChannelUpRefetchesAndRejoins(t *testing.T) {
	api := &fakeAPI{}
	api.add(&model.Message{ID: "m1", ConversationID: "conv-1", Content: "first", SentBy: staff, Timestamp: t0})
	rt := &fakeRealtime{connected: true}

	r := New(api, rt, fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	assert.Eventually(t, func() bool { return r.Fetches() == 1 && len(r.Timeline()) == 1 }, time.Second, 5*time.Millisecond)

	// a message lands while the channel is down
	api.add(&model.Message{ID: "m2", ConversationID: "conv-1", Content: "gap", SentBy: staff, Timestamp: t0.Add(time.Second)})
	r.ChannelUp()
	r.ChannelUp()

	assert.Eventually(t, func() bool { return len(r.Timeline()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return rt.joinCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_RefreshError(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("boom")}
	r := New(api, nil, fastConfig())
	assert.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, int64(1), r.Fetches())
}
