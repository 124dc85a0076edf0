package leader

import (
	"time"

	"github.com/jonboulle/clockwork"

	"goa.design/relay/metrics"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

type (
	// Option is a leader service creation option.
	Option func(*options)

	options struct {
		keys            storage.Keys
		interval        time.Duration
		expirationCount int
		queueCount      int
		clock           clockwork.Clock
		logger          relay.Logger
		metrics         *metrics.Metrics
	}
)

const (
	// DefaultHeartbeatInterval is the default heartbeat interval.
	DefaultHeartbeatInterval = 30 * time.Second
	// MinHeartbeatInterval is the smallest accepted heartbeat interval.
	MinHeartbeatInterval = 10 * time.Second
	// DefaultExpirationCount is the default number of heartbeat intervals
	// after which a silent node is expired.
	DefaultExpirationCount = 6
	// MinExpirationCount is the smallest accepted expiration count.
	MinExpirationCount = 3
)

// WithKeys sets the key namespace, defaults to storage.DefaultPrefix.
func WithKeys(keys storage.Keys) Option {
	return func(o *options) {
		o.keys = keys
	}
}

// WithHeartbeatInterval sets the interval between two heartbeats and
// between two failure detection ticks. Values below MinHeartbeatInterval
// are raised to it. Defaults to 30s.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithExpirationCount sets the number of heartbeat intervals after which a
// silent node is expired. Values below MinExpirationCount are raised to it.
// Defaults to 6.
func WithExpirationCount(n int) Option {
	return func(o *options) {
		o.expirationCount = n
	}
}

// WithQueueCount sets the number of priority queues. Defaults to 1.
func WithQueueCount(n int) Option {
	return func(o *options) {
		o.queueCount = n
	}
}

// WithClock sets the clock used to timestamp heartbeats and drive the
// loops.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the service logger.
func WithLogger(logger relay.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the collectors updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// parseOptions parses the given options and returns the corresponding
// options. It also reports whether a value had to be raised to its floor.
func parseOptions(opts ...Option) (*options, bool) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	var clamped bool
	if o.interval < MinHeartbeatInterval {
		o.interval = MinHeartbeatInterval
		clamped = true
	}
	if o.expirationCount < MinExpirationCount {
		o.expirationCount = MinExpirationCount
		clamped = true
	}
	if o.queueCount < 1 {
		o.queueCount = 1
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = relay.NoopLogger()
	}
	return o, clamped
}

// defaultOptions returns the default options.
func defaultOptions() *options {
	return &options{
		keys:            storage.NewKeys(storage.DefaultPrefix),
		interval:        DefaultHeartbeatInterval,
		expirationCount: DefaultExpirationCount,
		queueCount:      1,
		clock:           clockwork.NewRealClock(),
		logger:          relay.NoopLogger(),
	}
}
