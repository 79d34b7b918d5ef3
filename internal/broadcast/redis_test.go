package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croniumhq/cronium-engine/internal/core"
)

// stubPublisher fails the first failures publishes, then succeeds. Payloads
// are captured for inspection.
type stubPublisher struct {
	failures int
	calls    int
	channels []string
	payloads [][]byte
}

func (s *stubPublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	s.calls++
	s.channels = append(s.channels, channel)
	if b, ok := message.([]byte); ok {
		s.payloads = append(s.payloads, b)
	}

	cmd := redis.NewIntCmd(context.Background())
	if s.calls <= s.failures {
		cmd.SetErr(assert.AnError)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func newTestGateway(pub publisher) *RedisGateway {
	return &RedisGateway{
		client:        pub,
		channelPrefix: defaultChannelPrefix,
		maxAttempts:   3,
		retryDelay:    time.Millisecond,
	}
}

func TestBroadcastPublishesLogUpdate(t *testing.T) {
	pub := &stubPublisher{}
	gw := newTestGateway(pub)

	status := "running"
	result := gw.Broadcast(context.Background(), "log-1", core.LogUpdate{
		Status: "RUNNING",
		Output: &status,
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	require.Len(t, pub.channels, 1)
	assert.Equal(t, "cronium:logs:log-1", pub.channels[0])

	var decoded core.LogUpdate
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.EqualValues(t, "RUNNING", decoded.Status)
}

func TestBroadcastRetriesUntilSuccess(t *testing.T) {
	pub := &stubPublisher{failures: 2}
	gw := newTestGateway(pub)

	result := gw.Broadcast(context.Background(), "log-1", core.LogUpdate{Status: "DONE"})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestBroadcastGivesUpAfterMaxAttempts(t *testing.T) {
	pub := &stubPublisher{failures: 10}
	gw := newTestGateway(pub)

	result := gw.Broadcast(context.Background(), "log-1", core.LogUpdate{Status: "DONE"})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Error(t, result.Err)
	assert.Equal(t, 3, pub.calls)
}

func TestBroadcastRequiresLogID(t *testing.T) {
	pub := &stubPublisher{}
	gw := newTestGateway(pub)

	result := gw.Broadcast(context.Background(), "", core.LogUpdate{Status: "DONE"})

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
	assert.Zero(t, pub.calls)
}

func TestNoopGatewayAlwaysSucceeds(t *testing.T) {
	result := NoopGateway{}.Broadcast(context.Background(), "log-1", core.LogUpdate{Status: "DONE"})
	assert.True(t, result.Success)
}

func TestNewRedisGatewayRequiresClient(t *testing.T) {
	_, err := NewRedisGateway(RedisGatewayOptions{})
	require.Error(t, err)
}
