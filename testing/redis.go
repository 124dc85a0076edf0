package testing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisPwd is the default test redis password, overridden by REDIS_PASSWORD env var
var redisPwd = "redispassword"

// redisAddr is the default test redis address, overridden by REDIS_ADDR env var
var redisAddr = "localhost:6379"

func init() {
	if p := os.Getenv("REDIS_PASSWORD"); p != "" {
		redisPwd = p
	}
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		redisAddr = a
	}
}

// NewRedisClient returns a client connected to the test Redis server. The test
// fails immediately if the server cannot be reached.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPwd})
	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		if strings.Contains(err.Error(), "WRONGPASS") {
			t.Fatal("Unexpected Redis password error (did you set REDIS_PASSWORD?)")
		} else if strings.Contains(err.Error(), "connection refused") {
			t.Fatal("Unexpected Redis connection error (is Redis running?)")
		}
	}
	require.NoError(t, err)
	return rdb
}

// TestPrefix returns a key namespace prefix unique to the running test so
// that packages tested in parallel against the same server do not collide.
func TestPrefix(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "*", "_").Replace(t.Name())
	return fmt.Sprintf("relay-test:%s:%d", name, time.Now().UnixNano())
}

// CleanupRedis deletes all the keys that start with prefix. If checkClean is
// true, it first checks that no lock key is left behind, locks must always
// be released by the code under test.
func CleanupRedis(t *testing.T, rdb *redis.Client, checkClean bool, prefix string) {
	t.Helper()
	ctx := context.Background()
	keys, err := rdb.Keys(ctx, prefix+"*").Result()
	require.NoError(t, err)
	if checkClean {
		assert.Eventually(t, func() bool {
			locks, err := rdb.Keys(ctx, prefix+"*lock*").Result()
			return err == nil && len(locks) == 0
		}, time.Second, 10*time.Millisecond, "found lock keys")
	}
	if len(keys) > 0 {
		assert.NoError(t, rdb.Del(ctx, keys...).Err())
	}
}
