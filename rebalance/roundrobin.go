package rebalance

import (
	"context"

	"goa.design/relay/relay"
)

// roundRobin splits the queues in contiguous, evenly sized ranges over the
// sorted nodes. A failure recomputes the whole map.
type roundRobin struct {
	store  store
	logger relay.Logger
}

func newRoundRobin(s store, logger relay.Logger) *roundRobin {
	return &roundRobin{store: s, logger: logger}
}

// RoundRobin returns the round robin assignment of queueCount queues over
// nodes. Nodes are sorted, each gets queueCount/len(nodes) queues and the
// first queueCount%len(nodes) nodes get one more. When there are more nodes
// than queues node i gets queue i%queueCount so that every node has work.
func RoundRobin(nodes []string, queueCount int) map[string][]int {
	nodes = normalize(nodes)
	res := make(map[string][]int, len(nodes))
	n := len(nodes)
	if n == 0 {
		return res
	}
	if queueCount <= 0 {
		for _, node := range nodes {
			res[node] = []int{}
		}
		return res
	}
	if n > queueCount {
		for i, node := range nodes {
			res[node] = []int{i % queueCount}
		}
		return res
	}
	per, extra := queueCount/n, queueCount%n
	q := 0
	for i, node := range nodes {
		count := per
		if i < extra {
			count++
		}
		queues := make([]int, count)
		for j := range queues {
			queues[j] = q
			q++
		}
		res[node] = queues
	}
	return res
}

func (r *roundRobin) StartRebalance(ctx context.Context, activeNodes []string, queueCount int) error {
	assignment := RoundRobin(activeNodes, queueCount)
	if err := r.store.replace(ctx, assignment); err != nil {
		return err
	}
	r.logger.Info("rebalanced", "nodes", len(assignment), "queues", queueCount)
	return nil
}

func (r *roundRobin) QueuesForWorker(ctx context.Context, node string, activeNodes []string, queueCount int) ([]int, error) {
	return queuesForWorker(ctx, r.store, func() error {
		return r.StartRebalance(ctx, activeNodes, queueCount)
	}, node)
}

func (r *roundRobin) HandleNodeFailure(ctx context.Context, dead string, activeNodes []string, queueCount int) error {
	survivors := make([]string, 0, len(activeNodes))
	for _, n := range activeNodes {
		if n != dead {
			survivors = append(survivors, n)
		}
	}
	if err := r.StartRebalance(ctx, survivors, queueCount); err != nil {
		return err
	}
	return r.store.remove(ctx, dead)
}
