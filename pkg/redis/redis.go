package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

type Options = goredis.UniversalOptions

// StreamMessage represents a message in Redis Stream
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// PendingEntry is one entry of XPENDING's extended form.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	RetryCount int64
}

type RedisAdapter interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	Exist(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Client() goredis.UniversalClient
	Close() error

	XAdd(ctx context.Context, key string, values map[string]interface{}) (string, error)
	XReadGroup(ctx context.Context, group, consumer, key string, count int64, block time.Duration) ([]StreamMessage, error)
	XAck(ctx context.Context, key, group string, ids ...string) error
	XGroupCreateMkStream(ctx context.Context, key, group, start string) error
	XLen(ctx context.Context, key string) (int64, error)
	XTrimApprox(ctx context.Context, key string, maxLen int64) error
	XPendingCount(ctx context.Context, key, group string) (int64, error)
	XPendingExt(ctx context.Context, key, group string, count int64) ([]PendingEntry, error)
	XClaim(ctx context.Context, key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)
}

type redisAdapter struct {
	prefix string
	Conn   goredis.UniversalClient
}

// NewRedisAdapter connects and pings. Every key passed to the adapter is
// prefixed with keysPrefix.
func NewRedisAdapter(ctx context.Context, keysPrefix string, opts *goredis.UniversalOptions) (RedisAdapter, error) {
	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &redisAdapter{Conn: c, prefix: keysPrefix}, nil
}

func (r *redisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Conn.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *redisAdapter) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.Conn.SetNX(ctx, r.prefix+key, value, ttl).Result()
}

func (r *redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return r.Conn.Get(ctx, r.prefix+key).Bytes()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	return r.Conn.Del(ctx, prefixed...).Err()
}

func (r *redisAdapter) Exist(ctx context.Context, key string) (int64, error) {
	return r.Conn.Exists(ctx, r.prefix+key).Result()
}

// Incr increments key and, on first creation, sets its ttl.
func (r *redisAdapter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := r.Conn.Incr(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		_ = r.Conn.Expire(ctx, r.prefix+key, ttl).Err()
	}
	return n, nil
}

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.Conn.Ping(ctx).Err()
}

func (r *redisAdapter) Client() goredis.UniversalClient {
	return r.Conn
}

func (r *redisAdapter) Close() error {
	return r.Conn.Close()
}

// Stream operations

func (r *redisAdapter) XAdd(ctx context.Context, key string, values map[string]interface{}) (string, error) {
	return r.Conn.XAdd(ctx, &goredis.XAddArgs{
		Stream: r.prefix + key,
		ID:     "*",
		Values: values,
	}).Result()
}

// XReadGroup reads new entries for the consumer. A zero block means do not
// block at all.
func (r *redisAdapter) XReadGroup(ctx context.Context, group, consumer, key string, count int64, block time.Duration) ([]StreamMessage, error) {
	if block <= 0 {
		block = -1
	}
	streams, err := r.Conn.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.prefix + key, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, StreamMessage{ID: msg.ID, Values: msg.Values})
		}
	}
	return messages, nil
}

func (r *redisAdapter) XAck(ctx context.Context, key, group string, ids ...string) error {
	return r.Conn.XAck(ctx, r.prefix+key, group, ids...).Err()
}

// XGroupCreateMkStream creates the group and the stream. An existing group
// is not an error.
func (r *redisAdapter) XGroupCreateMkStream(ctx context.Context, key, group, start string) error {
	err := r.Conn.XGroupCreateMkStream(ctx, r.prefix+key, group, start).Err()
	if err != nil && isBusyGroup(err) {
		return nil
	}
	return err
}

func (r *redisAdapter) XLen(ctx context.Context, key string) (int64, error) {
	return r.Conn.XLen(ctx, r.prefix+key).Result()
}

func (r *redisAdapter) XTrimApprox(ctx context.Context, key string, maxLen int64) error {
	return r.Conn.XTrimMaxLenApprox(ctx, r.prefix+key, maxLen, 0).Err()
}

func (r *redisAdapter) XPendingCount(ctx context.Context, key, group string) (int64, error) {
	res, err := r.Conn.XPending(ctx, r.prefix+key, group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (r *redisAdapter) XPendingExt(ctx context.Context, key, group string, count int64) ([]PendingEntry, error) {
	res, err := r.Conn.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: r.prefix + key,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]PendingEntry, len(res))
	for i, p := range res {
		out[i] = PendingEntry{ID: p.ID, Consumer: p.Consumer, Idle: p.Idle, RetryCount: p.RetryCount}
	}
	return out, nil
}

func (r *redisAdapter) XClaim(ctx context.Context, key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	res, err := r.Conn.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   r.prefix + key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(res))
	for _, msg := range res {
		messages = append(messages, StreamMessage{ID: msg.ID, Values: msg.Values})
	}
	return messages, nil
}

func isBusyGroup(err error) bool {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return strings.HasPrefix(rerr.Error(), "BUSYGROUP")
	}
	return false
}
