// Package taskq implements the master and slave roles of the task queue.
//
// Masters send tasks into priority queues and relay the results produced by
// slaves. Slaves claim tasks from the queues, run them and commit their
// results. Every claimed payload is recorded in the claiming node ledger
// until committed so that the leader can hand it back if the node dies.
package taskq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/relay/leader"
	"goa.design/relay/ledger"
	"goa.design/relay/metrics"
	"goa.design/relay/rebalance"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

// node holds the state shared by masters and slaves.
type node struct {
	id          string
	role        string
	backend     storage.Backend
	keys        storage.Keys
	ledger      *ledger.Ledger
	leader      *leader.Service
	logger      relay.Logger
	metrics     *metrics.Metrics
	queueCount  int
	lockTimeout time.Duration

	lock   sync.Mutex
	closed bool
}

// newNode creates the node, records its first heartbeat and starts its
// leader service.
func newNode(ctx context.Context, role string, backend storage.Backend, opts ...Option) (*node, error) {
	o, err := parseOptions(opts...)
	if err != nil {
		return nil, err
	}
	id := leader.NodeID(role, o.identity)
	logger := o.logger.WithPrefix("node", id)
	keys := storage.NewKeys(o.prefix)
	strategy, err := rebalance.New(o.strategy, backend, keys.RebalanceMap(), rebalance.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	svc := leader.New(id, backend, strategy,
		leader.WithKeys(keys),
		leader.WithHeartbeatInterval(o.interval),
		leader.WithExpirationCount(o.expirationCount),
		leader.WithQueueCount(o.queueCount),
		leader.WithClock(o.clock),
		leader.WithLogger(o.logger),
		leader.WithMetrics(o.metrics))
	// Register synchronously so the node is active as soon as it is
	// returned.
	if err := svc.Heart(ctx); err != nil {
		return nil, err
	}
	svc.Start(ctx)
	logger.Info("node started", "prefix", keys.Prefix(), "queues", o.queueCount)
	return &node{
		id:          id,
		role:        role,
		backend:     backend,
		keys:        keys,
		ledger:      ledger.New(backend, keys.ExecuteHash()),
		leader:      svc,
		logger:      logger,
		metrics:     o.metrics,
		queueCount:  o.queueCount,
		lockTimeout: o.lockTimeout,
	}, nil
}

// NodeID returns the ID of the node.
func (n *node) NodeID() string {
	return n.id
}

// Keys returns the key namespace of the node.
func (n *node) Keys() storage.Keys {
	return n.keys
}

// QueueCount returns the number of priority queues.
func (n *node) QueueCount() int {
	return n.queueCount
}

// ExecuteQueue returns the payloads claimed by the node and not committed
// yet, in claim order.
func (n *node) ExecuteQueue(ctx context.Context) ([]string, error) {
	return n.ledger.Get(ctx, n.id)
}

// ExecuteQueueSum returns the number of payloads claimed by the node and not
// committed yet.
func (n *node) ExecuteQueueSum(ctx context.Context) (int, error) {
	return n.ledger.Sum(ctx, n.id)
}

// ActiveNodes returns the IDs of the nodes whose heartbeat has not expired.
func (n *node) ActiveNodes(ctx context.Context) ([]string, error) {
	return n.leader.ActiveNodes(ctx)
}

// Leader returns the ID of the current leader node.
func (n *node) Leader(ctx context.Context) (string, bool, error) {
	return n.leader.Leader(ctx)
}

// IsLeader reports whether this node holds the leadership.
func (n *node) IsLeader() bool {
	return n.leader.IsLeader()
}

// Close stops the node. Payloads still in the node ledger are handed back
// by the leader. Close is idempotent.
func (n *node) Close(ctx context.Context) error {
	n.lock.Lock()
	if n.closed {
		n.lock.Unlock()
		return nil
	}
	n.closed = true
	n.lock.Unlock()
	if err := n.leader.Close(ctx); err != nil {
		return err
	}
	n.logger.Info("node closed")
	return nil
}

// checkOpen returns ErrClosed if the node is closed.
func (n *node) checkOpen() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.closed {
		return ErrClosed
	}
	return nil
}

// queueKey returns the key of queue or ErrInvalidQueue.
func (n *node) queueKey(queue int) (string, error) {
	if queue < 0 || queue >= n.queueCount {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidQueue, queue, n.queueCount)
	}
	return n.keys.Queue(queue), nil
}
