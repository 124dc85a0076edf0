package storage

import (
	"time"

	"goa.design/relay/relay"
)

type (
	// RedisOption is a Redis backend creation option.
	RedisOption func(*redisOptions)

	redisOptions struct {
		logger           relay.Logger
		lockLease        time.Duration
		lockRetryInitial time.Duration
		lockRetryMax     time.Duration
	}
)

// WithLogger sets the backend logger, used to report lock renewal and
// release failures.
func WithLogger(logger relay.Logger) RedisOption {
	return func(o *redisOptions) {
		o.logger = logger
	}
}

// WithLockLease sets the lease of the locks acquired by WithLock. The lease
// is renewed every third of its duration while the lock is held and bounds
// how long a lock held by a crashed process stays unavailable. Defaults to
// 30s.
func WithLockLease(lease time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.lockLease = lease
	}
}

// WithLockRetryInterval sets the initial and maximum delays between two
// lock acquisition attempts. Defaults to 50ms and 1s.
func WithLockRetryInterval(initial, max time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.lockRetryInitial = initial
		o.lockRetryMax = max
	}
}

// parseRedisOptions parses the given options and returns the corresponding
// Redis backend options.
func parseRedisOptions(opts ...RedisOption) *redisOptions {
	o := defaultRedisOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = relay.NoopLogger()
	}
	if o.lockLease <= 0 {
		o.lockLease = defaultLockLease
	}
	if o.lockRetryInitial <= 0 {
		o.lockRetryInitial = defaultLockRetryInitial
	}
	if o.lockRetryMax < o.lockRetryInitial {
		o.lockRetryMax = o.lockRetryInitial
	}
	return o
}

// defaultRedisOptions returns the default Redis backend options.
func defaultRedisOptions() *redisOptions {
	return &redisOptions{
		logger:           relay.NoopLogger(),
		lockLease:        defaultLockLease,
		lockRetryInitial: defaultLockRetryInitial,
		lockRetryMax:     defaultLockRetryMax,
	}
}

const (
	defaultLockLease        = 30 * time.Second
	defaultLockRetryInitial = 50 * time.Millisecond
	defaultLockRetryMax     = time.Second
)
