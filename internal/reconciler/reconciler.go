package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
)

// API is the REST side of a conversation.
type API interface {
	ListMessages(ctx context.Context, conversationID string, page, limit int) (*model.MessagePage, error)
	SendMessage(ctx context.Context, req model.MessageCreateRequest) (*model.Message, error)
}

// Realtime is the push side. Send returns once the relay acknowledged the
// message or ctx ends.
type Realtime interface {
	Connected() bool
	Join(conversationID string) error
	Send(ctx context.Context, msg model.RealtimeSend) error
}

type Config struct {
	ConversationID string

	// PageSize is how many of the newest messages each fetch asks for.
	PageSize int

	DisconnectedInterval time.Duration
	ConnectedInterval    time.Duration
	MatchTolerance       time.Duration
	AckTimeout           time.Duration
}

func (c *Config) setDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.DisconnectedInterval <= 0 {
		c.DisconnectedInterval = 3 * time.Second
	}
	if c.ConnectedInterval <= 0 {
		c.ConnectedInterval = 10 * time.Second
	}
	if c.MatchTolerance <= 0 {
		c.MatchTolerance = DefaultMatchTolerance
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = time.Second
	}
}

type SendResult struct {
	Message           *model.Message `json:"message"`
	RealtimeConfirmed bool           `json:"realtimeConfirmed"`
}

// Reconciler keeps one conversation's timeline consistent across REST
// fetches, polling and real-time pushes.
type Reconciler struct {
	api      API
	realtime Realtime
	config   Config
	timeline *Timeline

	channelUp   chan struct{}
	fetches     atomic.Int64

	mu       sync.Mutex
	onChange func([]Entry)

	log *logger.ZapLogger
}

// New builds a Reconciler. realtime may be nil, the view then relies on
// polling alone.
func New(api API, realtime Realtime, config Config) *Reconciler {
	config.setDefaults()
	return &Reconciler{
		api:         api,
		realtime:    realtime,
		config:      config,
		timeline:    NewTimeline(config.MatchTolerance),
		channelUp:   make(chan struct{}, 1),
		log:         logger.Named("reconciler").With("conversation_id", config.ConversationID),
	}
}

func (r *Reconciler) ConversationID() string {
	return r.config.ConversationID
}

// OnChange registers fn to run with a fresh snapshot after every change.
func (r *Reconciler) OnChange(fn func([]Entry)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Reconciler) changed() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(r.timeline.Snapshot())
	}
}

func (r *Reconciler) Timeline() []Entry {
	return r.timeline.Snapshot()
}

// Fetches counts page fetches, each of which is also a read receipt.
func (r *Reconciler) Fetches() int64 {
	return r.fetches.Load()
}

func (r *Reconciler) connected() bool {
	return r.realtime != nil && r.realtime.Connected()
}

// PollInterval is short while disconnected or while the view is empty.
func (r *Reconciler) PollInterval() time.Duration {
	if !r.connected() || r.timeline.Len() == 0 {
		return r.config.DisconnectedInterval
	}
	return r.config.ConnectedInterval
}

// Run activates the conversation and polls until ctx ends. Activation
// always fetches once, even when pushes already filled the view.
func (r *Reconciler) Run(ctx context.Context) error {
	r.join()
	if err := r.Refresh(ctx); err != nil {
		r.log.Warn("activation fetch failed", "error", err)
	}

	timer := time.NewTimer(r.PollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.channelUp:
			r.join()
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("refetch after connect failed", "error", err)
			}
		case <-timer.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Debug("poll failed", "error", err)
			}
		}
		timer.Reset(r.PollInterval())
	}
}

func (r *Reconciler) join() {
	if !r.connected() {
		return
	}
	if err := r.realtime.Join(r.config.ConversationID); err != nil {
		r.log.Warn("join conversation failed", "error", err)
	}
}

// ChannelUp tells Run the real-time channel (re)connected so it joins the
// conversation room and re-fetches right away. It never blocks.
func (r *Reconciler) ChannelUp() {
	select {
	case r.channelUp <- struct{}{}:
	default:
	}
}

// Refresh fetches the newest page and merges it.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.fetches.Add(1)
	page, err := r.api.ListMessages(ctx, r.config.ConversationID, 1, r.config.PageSize)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	changed := false
	for _, m := range page.Messages {
		if r.timeline.Merge(FromMessage(m)).Changed() {
			changed = true
		}
	}
	if changed {
		r.changed()
	}
	return nil
}

// HandleEvent merges one real-time envelope. Events for other
// conversations and unknown events are ignored.
func (r *Reconciler) HandleEvent(env model.Envelope) {
	switch env.Event {
	case model.EventNewMessage, model.EventClientMessage, model.EventAdminMessage:
		var msg model.RealtimeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			r.log.Debug("undecodable real-time message", "event", env.Event, "error", err)
			return
		}
		if msg.ConversationID != r.config.ConversationID {
			return
		}
		if r.timeline.Merge(FromRealtime(&msg)).Changed() {
			r.changed()
		}
	case model.EventMessageReceived:
		var rcv model.MessageReceived
		if err := json.Unmarshal(env.Data, &rcv); err != nil {
			return
		}
		if r.timeline.SetStatus(rcv.MessageID, rcv.Status) {
			r.changed()
		}
	}
}

// Send persists through REST first and appends the stored message. The
// real-time notification that follows is best effort: a timeout or a down
// channel only leaves RealtimeConfirmed false.
func (r *Reconciler) Send(ctx context.Context, content string, priority model.Priority) (*SendResult, error) {
	ref := uuid.NewString()
	msg, err := r.api.SendMessage(ctx, model.MessageCreateRequest{
		ConversationID:  r.config.ConversationID,
		Content:         content,
		Priority:        priority,
		ClientMessageID: ref,
	})
	if err != nil {
		return nil, err
	}
	if msg.ClientMessageID == "" {
		msg.ClientMessageID = ref
	}
	if r.timeline.Merge(FromMessage(msg)).Changed() {
		r.changed()
	}

	result := &SendResult{Message: msg}
	if !r.connected() {
		return result, nil
	}

	ackCtx, cancel := context.WithTimeout(ctx, r.config.AckTimeout)
	defer cancel()
	err = r.realtime.Send(ackCtx, model.RealtimeSend{
		ConversationID: r.config.ConversationID,
		Content:        msg.Content,
		Priority:       msg.Priority,
		MessageID:      ref,
	})
	switch {
	case err == nil:
		result.RealtimeConfirmed = true
	case errors.Is(err, context.DeadlineExceeded):
		r.log.Debug("real-time ack timed out", "message_id", msg.ID)
	default:
		r.log.Warn("real-time send failed", "message_id", msg.ID, "error", err)
	}
	return result, nil
}
