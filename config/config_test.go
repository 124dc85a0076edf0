package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/relay/relay"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/relay.yaml")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.Equal(t, "redispassword", c.Redis.Password)
	assert.Equal(t, "relay:orders", c.Prefix)
	assert.Equal(t, 3, c.Queues)
	assert.Equal(t, "round_robin", c.Strategy)
	assert.Equal(t, 15*time.Second, c.Heartbeat.Interval)
	assert.Equal(t, 4, c.Heartbeat.ExpirationCount)
	assert.Equal(t, 500*time.Millisecond, c.Lock.Timeout)
	assert.Equal(t, 10*time.Second, c.Lock.Lease)
	assert.True(t, c.Log.Debug)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "localhost:9090", c.Metrics.Addr)

	opts := c.Options(relay.NoopLogger(), nil)
	assert.Len(t, opts, 8)
	rdb := c.RedisClient()
	defer rdb.Close()
	assert.Equal(t, "localhost:6379", rdb.Options().Addr)
	assert.NotNil(t, c.Backend(rdb, relay.NoopLogger()))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte("redis:\n  addr: redis:6379\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "relay:default", c.Prefix)
	assert.Equal(t, 1, c.Queues)
	assert.Equal(t, "consistent-hash", c.Strategy)
	assert.Equal(t, 30*time.Second, c.Heartbeat.Interval)
	assert.Equal(t, 6, c.Heartbeat.ExpirationCount)
	assert.Equal(t, time.Second, c.Lock.Timeout)
}

func TestFloors(t *testing.T) {
	c, err := Parse([]byte("heartbeat:\n  interval: 1s\n  expiration_count: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.Heartbeat.Interval)
	assert.Equal(t, 3, c.Heartbeat.ExpirationCount)
}

func TestInvalid(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{"too-many-queues", "queues: 10", "queues"},
		{"no-queue", "queues: 0", "queues"},
		{"unknown-strategy", "strategy: random", "strategy"},
		{"no-redis", "redis:\n  addr: \"\"", "addr"},
		{"bad-format", "log:\n  format: xml", "format"},
		{"bad-metrics-addr", "metrics:\n  addr: nope", "addr"},
		{"not-yaml", "queues: [", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), c.field)
		})
	}
}
