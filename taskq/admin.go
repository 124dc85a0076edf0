package taskq

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"goa.design/relay/ledger"
	"goa.design/relay/rebalance"
	"goa.design/relay/storage"
)

// Status is a snapshot of a namespace.
type Status struct {
	// Leader is the ID of the last node recorded as leader, empty if none.
	Leader string
	// Heartbeats maps node IDs to the time of their last heartbeat. Nodes
	// that closed gracefully and are not processed by a leader yet have
	// the zero Unix time.
	Heartbeats map[string]time.Time
	// Ledgers maps node IDs to their number of in-flight payloads.
	Ledgers map[string]int
	// Assignments maps slave IDs to the queues they own.
	Assignments map[string][]int
	// QueueSizes is the number of tasks in each priority queue.
	QueueSizes []int64
	// Results is the number of results waiting for a master.
	Results int64
}

var (
	minScore = math.Inf(-1)
	maxScore = math.Inf(1)
)

// Reset deletes every key of the namespace prefix: queues, results,
// ledgers, heartbeats, leader record, locks and assignments. It must not be
// called while nodes are running.
func Reset(ctx context.Context, backend storage.Backend, prefix string, queueCount int) (int64, error) {
	if queueCount < 1 || queueCount > storage.MaxQueues {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQueueCount, queueCount)
	}
	n, err := backend.Purge(ctx, storage.NewKeys(prefix).All(queueCount)...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset %q: %w", prefix, err)
	}
	return n, nil
}

// QueueSizes returns the number of tasks in each of the queueCount priority
// queues of keys.
func QueueSizes(ctx context.Context, backend storage.Backend, keys storage.Keys, queueCount int) ([]int64, error) {
	sizes := make([]int64, queueCount)
	for i := range sizes {
		n, err := backend.ZCard(ctx, keys.Queue(i))
		if err != nil {
			return nil, err
		}
		sizes[i] = n
	}
	return sizes, nil
}

// Inspect returns a snapshot of the namespace prefix without joining it.
func Inspect(ctx context.Context, backend storage.Backend, prefix string, queueCount int) (*Status, error) {
	if queueCount < 1 || queueCount > storage.MaxQueues {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueCount, queueCount)
	}
	keys := storage.NewKeys(prefix)
	st := &Status{Heartbeats: make(map[string]time.Time), Ledgers: make(map[string]int)}

	id, _, err := backend.Get(ctx, keys.LeaderName())
	if err != nil {
		return nil, err
	}
	st.Leader = id

	hearts, err := backend.HGetAll(ctx, keys.HeartHash())
	if err != nil {
		return nil, err
	}
	for node, raw := range hearts {
		ms, _ := strconv.ParseInt(raw, 10, 64)
		st.Heartbeats[node] = time.UnixMilli(ms)
	}

	ledgers, err := ledger.New(backend, keys.ExecuteHash()).All(ctx)
	if err != nil {
		return nil, err
	}
	for node, list := range ledgers {
		st.Ledgers[node] = len(list)
	}

	if st.Assignments, err = rebalance.Load(ctx, backend, keys.RebalanceMap()); err != nil {
		return nil, err
	}
	if st.QueueSizes, err = QueueSizes(ctx, backend, keys, queueCount); err != nil {
		return nil, err
	}
	if st.Results, err = backend.Len(ctx, keys.ResultQueue()); err != nil {
		return nil, err
	}
	return st, nil
}
