package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/prom"
	"github.com/nimasrn/bigchat/pkg/redis"
)

const (
	fieldType      = "type"
	fieldData      = "data"
	fieldPublished = "published_at"
)

type StreamConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

func (c *StreamConfig) setDefaults() {
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "relay"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "relay-" + uuid.NewString()[:8]
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
}

// Delivery is one stream entry handed to a consumer. Attempts counts how
// many times the entry has been delivered, starting at 1.
type Delivery struct {
	ID       string
	Event    *model.MessageEvent
	Attempts int64
}

// Handler processes one delivery. A nil error acks the entry, anything else
// leaves it pending so it is claimed again after the visibility timeout.
type Handler func(ctx context.Context, d *Delivery) error

// Stream is the message event bus on top of a Redis stream with a consumer
// group. Entries that keep failing go to "<name>:dlq".
type Stream struct {
	adapter redis.RedisAdapter
	config  StreamConfig
	handler Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

type Stats struct {
	Length  int64 `json:"length"`
	Pending int64 `json:"pending"`
}

func NewStream(ctx context.Context, adapter redis.RedisAdapter, config StreamConfig) (*Stream, error) {
	if config.Name == "" {
		return nil, errors.New("stream name is required")
	}
	config.setDefaults()
	if err := adapter.XGroupCreateMkStream(ctx, config.Name, config.ConsumerGroup, "0"); err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Stream{adapter: adapter, config: config}, nil
}

// Publish appends the event to the stream.
func (s *Stream) Publish(ctx context.Context, evt *model.MessageEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.adapter.XAdd(ctx, s.config.Name, map[string]interface{}{
		fieldType:      evt.Type,
		fieldData:      string(data),
		fieldPublished: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if s.config.MaxLen > 0 {
		if err := s.adapter.XTrimApprox(ctx, s.config.Name, s.config.MaxLen); err != nil {
			logger.Warn("stream trim failed", "stream", s.config.Name, "error", err)
		}
	}
	return nil
}

// Consume starts the poll loop. It returns immediately; Stop ends it.
func (s *Stream) Consume(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("event handler is required")
	}
	s.handler = handler
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.consumeLoop(ctx)
	return nil
}

func (s *Stream) consumeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.readNew(ctx)
			s.claimStuck(ctx)
		}
	}
}

func (s *Stream) readNew(ctx context.Context) {
	entries, err := s.adapter.XReadGroup(ctx, s.config.ConsumerGroup, s.config.ConsumerName, s.config.Name, s.config.BatchSize, 0)
	if err != nil {
		if !errors.Is(err, redis.NilError) && ctx.Err() == nil {
			logger.Warn("stream read failed", "stream", s.config.Name, "error", err)
		}
		return
	}
	for _, e := range entries {
		s.handle(ctx, e, 1)
	}
}

// claimStuck takes over entries whose consumer went quiet for longer than
// the visibility timeout, including this consumer's own failed ones.
func (s *Stream) claimStuck(ctx context.Context) {
	pending, err := s.adapter.XPendingExt(ctx, s.config.Name, s.config.ConsumerGroup, 100)
	if err != nil || len(pending) == 0 {
		return
	}

	attempts := make(map[string]int64)
	var ids []string
	for _, p := range pending {
		if p.Idle >= s.config.VisibilityTimeout {
			ids = append(ids, p.ID)
			attempts[p.ID] = p.RetryCount + 1
		}
	}
	if len(ids) == 0 {
		return
	}

	entries, err := s.adapter.XClaim(ctx, s.config.Name, s.config.ConsumerGroup, s.config.ConsumerName, s.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Warn("stream claim failed", "stream", s.config.Name, "error", err)
		return
	}
	for _, e := range entries {
		s.handle(ctx, e, attempts[e.ID])
	}
}

func (s *Stream) handle(ctx context.Context, entry redis.StreamMessage, attempts int64) {
	d, err := decode(entry)
	if err != nil {
		logger.Error("dropping undecodable stream entry", "stream", s.config.Name, "id", entry.ID, "error", err)
		s.deadLetter(ctx, entry, attempts, err)
		s.ack(ctx, entry.ID)
		return
	}
	d.Attempts = attempts

	if attempts > int64(s.config.MaxRetries) {
		logger.Error("stream entry exceeded retries", "stream", s.config.Name, "id", entry.ID, "attempts", attempts)
		s.deadLetter(ctx, entry, attempts, errors.New("max retries exceeded"))
		s.ack(ctx, entry.ID)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, s.config.VisibilityTimeout)
	defer cancel()
	if err := s.handler(hctx, d); err != nil {
		logger.Warn("stream entry failed, will retry", "stream", s.config.Name, "id", entry.ID, "attempts", attempts, "error", err)
		return
	}
	s.ack(ctx, entry.ID)
}

func (s *Stream) ack(ctx context.Context, id string) {
	if err := s.adapter.XAck(ctx, s.config.Name, s.config.ConsumerGroup, id); err != nil {
		logger.Warn("stream ack failed", "stream", s.config.Name, "id", id, "error", err)
	}
}

func (s *Stream) deadLetter(ctx context.Context, entry redis.StreamMessage, attempts int64, reason error) {
	if !s.config.EnableDLQ {
		return
	}
	values := map[string]interface{}{
		"original_id":     entry.ID,
		"original_stream": s.config.Name,
		"attempts":        strconv.FormatInt(attempts, 10),
		"reason":          reason.Error(),
		"failed_at":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if data, ok := entry.Values[fieldData]; ok {
		values[fieldData] = data
	}
	if _, err := s.adapter.XAdd(ctx, s.DeadLetterName(), values); err != nil {
		logger.Error("dead letter write failed", "stream", s.config.Name, "id", entry.ID, "error", err)
	}
}

func (s *Stream) DeadLetterName() string {
	return s.config.Name + ":dlq"
}

func decode(entry redis.StreamMessage) (*Delivery, error) {
	raw, ok := entry.Values[fieldData].(string)
	if !ok {
		return nil, errors.New("missing data field")
	}
	var evt model.MessageEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return nil, err
	}
	if evt.Message == nil {
		return nil, errors.New("event without message")
	}
	return &Delivery{ID: entry.ID, Event: &evt}, nil
}

// Ping reads the stream stats, reporting them as the backlog gauges. It
// fails when the stream cannot be read.
func (s *Stream) Ping(ctx context.Context) error {
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stream %s: %w", s.config.Name, err)
	}
	prom.EventsBacklog(stats.Length, stats.Pending)
	return nil
}

func (s *Stream) Stats(ctx context.Context) (*Stats, error) {
	length, err := s.adapter.XLen(ctx, s.config.Name)
	if err != nil {
		return nil, err
	}
	pending, err := s.adapter.XPendingCount(ctx, s.config.Name, s.config.ConsumerGroup)
	if err != nil {
		pending = 0
	}
	return &Stats{Length: length, Pending: pending}, nil
}

// Stop cancels the poll loop and waits for the in-flight batch.
func (s *Stream) Stop(timeout time.Duration) error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for stream consumer to stop")
	}
}
