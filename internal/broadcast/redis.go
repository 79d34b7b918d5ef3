// Package broadcast pushes job log updates to subscribers. The engine treats
// delivery as best effort: a failed broadcast never fails the job transition
// that triggered it.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/croniumhq/cronium-engine/internal/core"
)

const (
	defaultChannelPrefix = "cronium:logs:"
	defaultMaxAttempts   = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

// publisher is the slice of the Redis client the gateway uses. Declared
// locally so tests can stub it.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisGatewayOptions configures a RedisGateway.
type RedisGatewayOptions struct {
	Client        redis.UniversalClient // Required: redis client
	Logger        *slog.Logger          // Optional: structured logger
	ChannelPrefix string                // Optional: defaults to "cronium:logs:"
	MaxAttempts   int                   // Optional: publish attempts, defaults to 3
	RetryDelay    time.Duration         // Optional: delay between attempts, defaults to 200ms
}

// RedisGateway broadcasts log updates over Redis pub/sub, one channel per
// log id. Publishes are retried a bounded number of times; the outcome is
// always reported through the result.
type RedisGateway struct {
	client        publisher
	logger        *slog.Logger
	channelPrefix string
	maxAttempts   int
	retryDelay    time.Duration
}

// NewRedisGateway constructs a RedisGateway.
func NewRedisGateway(opts RedisGatewayOptions) (*RedisGateway, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}

	channelPrefix := opts.ChannelPrefix
	if channelPrefix == "" {
		channelPrefix = defaultChannelPrefix
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "broadcast_gateway")
	}

	return &RedisGateway{
		client:        opts.Client,
		logger:        logger,
		channelPrefix: channelPrefix,
		maxAttempts:   maxAttempts,
		retryDelay:    retryDelay,
	}, nil
}

var _ core.BroadcastGateway = (*RedisGateway)(nil)

// Broadcast publishes the update to the log's channel with bounded retry.
func (g *RedisGateway) Broadcast(ctx context.Context, logID string, update core.LogUpdate) core.BroadcastResult {
	if logID == "" {
		return core.BroadcastResult{Err: errors.New("log id is required")}
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return core.BroadcastResult{Err: fmt.Errorf("encode update: %w", err)}
	}
	channel := g.channelPrefix + logID

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		attempts = attempt
		err := g.client.Publish(ctx, channel, payload).Err()
		if err == nil {
			return core.BroadcastResult{Success: true, Attempts: attempt}
		}
		lastErr = err

		if g.logger != nil {
			g.logger.WarnContext(ctx, "broadcast publish failed",
				"channel", channel,
				"attempt", attempt,
				"error", err,
			)
		}
		if attempt == g.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return core.BroadcastResult{Attempts: attempts, Err: ctx.Err()}
		case <-time.After(g.retryDelay):
		}
	}
	return core.BroadcastResult{Attempts: attempts, Err: lastErr}
}

// Channel returns the pub/sub channel updates for the log are published to.
// Subscribing collaborators use this to follow a single log stream.
func (g *RedisGateway) Channel(logID string) string {
	return g.channelPrefix + logID
}

// NoopGateway discards every broadcast. Used when no Redis endpoint is
// configured.
type NoopGateway struct{}

// Broadcast reports success without delivering anywhere.
func (NoopGateway) Broadcast(context.Context, string, core.LogUpdate) core.BroadcastResult {
	return core.BroadcastResult{Success: true, Attempts: 0}
}

var _ core.BroadcastGateway = NoopGateway{}
