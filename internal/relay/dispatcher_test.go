package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/bigchat/internal/events"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeout() <-chan time.Time {
	return time.After(2 * time.Second)
}

func setupGuard(t *testing.T) (*miniredis.Miniredis, *IdempotencyGuard) {
	t.Helper()
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(context.Background(), "test:", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return mr, NewIdempotencyGuard(adapter, DefaultIdempotencyConfig())
}

func committed(sender model.Sender) *model.MessageEvent {
	return &model.MessageEvent{
		Type:     model.EventMessageCreated,
		ClientID: alice.ID,
		Message: &model.Message{
			ID:              "srv-1",
			ConversationID:  "conv-1",
			Content:         "hello",
			SentBy:          sender,
			Timestamp:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Priority:        model.PriorityNormal,
			Status:          model.MessageStatusSent,
			Cost:            25,
			ClientMessageID: "tmp-1",
		},
	}
}

func decodeMessage(t *testing.T, env model.Envelope) model.RealtimeMessage {
	t.Helper()
	var m model.RealtimeMessage
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func TestDispatcher_BroadcastClientMessage(t *testing.T) {
	hub := NewHub()
	member := detachedSession("member", 8)
	staff := detachedSession("staff", 8)
	hub.Join(ConversationRoom("conv-1"), member)
	hub.Join(RoomAdmin, staff)

	d := NewDispatcher(hub, stubConversations{}, nil, DefaultDispatcherOption)
	d.Broadcast(committed(alice.Sender()))

	got := drain(t, member)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventNewMessage, got[0].Event)
	m := decodeMessage(t, got[0])
	assert.Equal(t, "srv-1", m.ID)
	assert.Equal(t, "tmp-1", m.ClientMessageID)
	assert.Equal(t, model.MessageStatusSent, m.Status)

	got = drain(t, staff)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventClientMessage, got[0].Event)
	assert.Equal(t, alice.ID, decodeMessage(t, got[0]).ClientID)
}

func TestDispatcher_BroadcastStaffMessage(t *testing.T) {
	hub := NewHub()
	owner := detachedSession(alice.ID, 8)
	hub.Join(ClientRoom(alice.ID), owner)

	d := NewDispatcher(hub, stubConversations{"conv-1": alice.ID}, nil, DefaultDispatcherOption)

	t.Run("owner from event", func(t *testing.T) {
		d.Broadcast(committed(agent.Sender()))
		got := drain(t, owner)
		require.Len(t, got, 1)
		assert.Equal(t, model.EventAdminMessage, got[0].Event)
		assert.Equal(t, agent.ID, decodeMessage(t, got[0]).AdminID)
	})

	t.Run("owner looked up", func(t *testing.T) {
		evt := committed(agent.Sender())
		evt.ClientID = ""
		d.Broadcast(evt)
		got := drain(t, owner)
		require.Len(t, got, 1)
		assert.Equal(t, model.EventAdminMessage, got[0].Event)
	})

	t.Run("lookup failure is swallowed", func(t *testing.T) {
		evt := committed(agent.Sender())
		evt.ClientID = ""
		evt.Message.ConversationID = "gone"
		d.Broadcast(evt)
		assert.Empty(t, drain(t, owner))
	})
}

func TestDispatcher_HandleBroadcastsOnce(t *testing.T) {
	_, guard := setupGuard(t)
	hub := NewHub()
	member := detachedSession("member", 8)
	hub.Join(ConversationRoom("conv-1"), member)

	d := NewDispatcher(hub, stubConversations{}, guard, DispatcherOption{Workers: 2, BufferSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	evt := committed(alice.Sender())
	require.NoError(t, d.Handle(ctx, &events.Delivery{ID: "1-0", Event: evt, Attempts: 1}))
	require.NoError(t, d.Handle(ctx, &events.Delivery{ID: "1-0", Event: evt, Attempts: 2}))

	select {
	case <-member.send:
	case <-timeout():
		t.Fatal("no broadcast")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, drain(t, member))

	processed, err := guard.isProcessed(ctx, "srv-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestDispatcher_HandleRejectsEmptyEvent(t *testing.T) {
	d := NewDispatcher(NewHub(), stubConversations{}, nil, DefaultDispatcherOption)
	assert.Error(t, d.Handle(context.Background(), &events.Delivery{ID: "1-0"}))
}

func TestDispatcher_ConsumesStream(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(context.Background(), "test:", &redis.Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := events.NewStream(ctx, adapter, events.StreamConfig{
		Name:         "message-events",
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer stream.Stop(time.Second)

	hub := NewHub()
	staff := detachedSession("staff", 8)
	hub.Join(RoomAdmin, staff)

	d := NewDispatcher(hub, stubConversations{}, NewIdempotencyGuard(adapter, DefaultIdempotencyConfig()), DefaultDispatcherOption)
	d.Start(ctx)
	defer d.Stop()
	require.NoError(t, stream.Consume(ctx, d.Handle))

	require.NoError(t, stream.Publish(ctx, committed(alice.Sender())))

	select {
	case frame := <-staff.send:
		var env model.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, model.EventClientMessage, env.Event)
	case <-timeout():
		t.Fatal("stream event was not relayed")
	}
}

func TestIdempotencyGuard(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()

	first, err := guard.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, guard.Release(ctx, "m1"))
	reclaimed, err := guard.Claim(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, reclaimed)

	t.Run("expires after ttl", func(t *testing.T) {
		mr.FastForward(25 * time.Hour)
		processed, err := guard.isProcessed(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("redis down lets the broadcast through", func(t *testing.T) {
		mr.Close()
		ok, err := guard.Claim(ctx, "m2")
		assert.Error(t, err)
		assert.True(t, ok)
	})
}
