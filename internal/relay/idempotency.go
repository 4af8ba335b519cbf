package relay

import (
	"context"
	"strconv"
	"time"

	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/redis"
)

type IdempotencyConfig struct {
	// ProcessedTTL is how long a broadcast message id is remembered.
	ProcessedTTL time.Duration

	KeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		ProcessedTTL: 24 * time.Hour,
		KeyPrefix:    "relay:broadcast:",
	}
}

// IdempotencyGuard remembers which message ids were already broadcast so a
// redelivered stream entry is not announced twice, even across relay
// instances sharing one Redis.
type IdempotencyGuard struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyGuard(adapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyGuard {
	if config.ProcessedTTL <= 0 {
		config.ProcessedTTL = DefaultIdempotencyConfig().ProcessedTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultIdempotencyConfig().KeyPrefix
	}
	return &IdempotencyGuard{redis: adapter, config: config}
}

func (g *IdempotencyGuard) key(messageID string) string {
	return g.config.KeyPrefix + messageID
}

// Claim returns true when the caller is the first to broadcast messageID.
// When Redis is unavailable it returns true along with the error.
func (g *IdempotencyGuard) Claim(ctx context.Context, messageID string) (bool, error) {
	stamp := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	ok, err := g.redis.SetNX(ctx, g.key(messageID), stamp, g.config.ProcessedTTL)
	if err != nil {
		logger.Warn("idempotency claim failed", "message_id", messageID, "error", err)
		return true, err
	}
	if !ok {
		logger.Debug("message already broadcast, skipping", "message_id", messageID)
	}
	return ok, nil
}

// Release forgets a claim so the next delivery can broadcast again.
func (g *IdempotencyGuard) Release(ctx context.Context, messageID string) error {
	if err := g.redis.Del(ctx, g.key(messageID)); err != nil {
		logger.Warn("idempotency release failed", "message_id", messageID, "error", err)
		return err
	}
	return nil
}

func (g *IdempotencyGuard) isProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := g.redis.Exist(ctx, g.key(messageID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
