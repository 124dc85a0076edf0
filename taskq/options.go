package taskq

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"goa.design/relay/leader"
	"goa.design/relay/metrics"
	"goa.design/relay/rebalance"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

type (
	// Option is a master or slave creation option.
	Option func(*options)

	options struct {
		prefix          string
		interval        time.Duration
		expirationCount int
		queueCount      int
		strategy        string
		lockTimeout     time.Duration
		identity        string
		clock           clockwork.Clock
		logger          relay.Logger
		metrics         *metrics.Metrics
	}
)

// DefaultLockTimeout is the default time a slave waits for a queue lock
// before trying the next queue.
const DefaultLockTimeout = time.Second

// WithPrefix sets the key namespace shared by all the nodes of a
// deployment. Defaults to "relay:default".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithHeartbeatInterval sets the heartbeat interval, at least 10s. Defaults
// to 30s.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithExpirationCount sets the number of missed heartbeats after which a
// node is expired, at least 3. Defaults to 6.
func WithExpirationCount(n int) Option {
	return func(o *options) {
		o.expirationCount = n
	}
}

// WithQueueCount sets the number of priority queues, between 1 and 9.
// Defaults to 1. All the nodes of a deployment must use the same value.
func WithQueueCount(n int) Option {
	return func(o *options) {
		o.queueCount = n
	}
}

// WithStrategy sets the name of the rebalance strategy, "consistent-hash"
// (default) or "round-robin".
func WithStrategy(name string) Option {
	return func(o *options) {
		o.strategy = name
	}
}

// WithLockTimeout sets how long a slave waits for a queue lock in locked
// mode before moving on to the next queue. Defaults to 1s.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithProcessIdentity overrides the process part of the node ID. By default
// it is built from the process ID, the host name and a ULID.
func WithProcessIdentity(identity string) Option {
	return func(o *options) {
		o.identity = identity
	}
}

// WithClock sets the clock used by the leader service.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the node logger.
func WithLogger(logger relay.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the collectors updated by the node.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// parseOptions parses and validates the given options.
func parseOptions(opts ...Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.queueCount < 1 || o.queueCount > storage.MaxQueues {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueCount, o.queueCount)
	}
	if o.lockTimeout <= 0 {
		o.lockTimeout = DefaultLockTimeout
	}
	if o.identity == "" {
		o.identity = ProcessIdentity()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = relay.NoopLogger()
	}
	return o, nil
}

// defaultOptions returns the default options.
func defaultOptions() *options {
	return &options{
		prefix:          storage.DefaultPrefix,
		interval:        leader.DefaultHeartbeatInterval,
		expirationCount: leader.DefaultExpirationCount,
		queueCount:      1,
		strategy:        rebalance.NameConsistentHash,
		lockTimeout:     DefaultLockTimeout,
		clock:           clockwork.NewRealClock(),
		logger:          relay.NoopLogger(),
	}
}
