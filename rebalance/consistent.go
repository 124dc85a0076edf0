package rebalance

import (
	"context"
	"sort"
	"sync"

	"goa.design/relay/relay"
)

// consistentHash assigns queues with a consistent hash ring so that a node
// failure only moves the queues of the failed node.
type consistentHash struct {
	store  store
	logger relay.Logger

	lock sync.Mutex
	ring *Ring
}

func newConsistentHash(s store, logger relay.Logger) *consistentHash {
	return &consistentHash{store: s, logger: logger}
}

func (c *consistentHash) StartRebalance(ctx context.Context, activeNodes []string, queueCount int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.start(ctx, activeNodes, queueCount)
}

func (c *consistentHash) start(ctx context.Context, activeNodes []string, queueCount int) error {
	nodes := normalize(activeNodes)
	c.ring = NewRing(nodes)
	if err := c.store.replace(ctx, c.ring.Assign(queueCount)); err != nil {
		return err
	}
	c.logger.Info("rebalanced", "nodes", len(nodes), "queues", queueCount)
	return nil
}

func (c *consistentHash) QueuesForWorker(ctx context.Context, node string, activeNodes []string, queueCount int) ([]int, error) {
	return queuesForWorker(ctx, c.store, func() error {
		return c.StartRebalance(ctx, activeNodes, queueCount)
	}, node)
}

func (c *consistentHash) HandleNodeFailure(ctx context.Context, dead string, activeNodes []string, queueCount int) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	orphans, known, err := c.store.get(ctx, dead)
	if err != nil {
		return err
	}
	// Masters and nodes never assigned have nothing to hand over.
	if !known && (c.ring == nil || !c.ring.Contains(dead)) {
		return nil
	}
	// The ring may be missing or stale when this process became leader
	// after the map was computed.
	members := append(normalize(activeNodes), dead)
	if c.ring == nil || !c.ring.HasMembers(members) {
		c.ring = NewRing(members)
	}
	c.ring.Remove(dead)
	if err := c.store.remove(ctx, dead); err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	if c.ring.Len() == 0 {
		c.logger.Warn("no node left to take over queues", "dead", dead, "queues", orphans)
		return nil
	}

	moved := make(map[string][]int)
	for _, q := range orphans {
		if owner, ok := c.ring.Locate(queueName(q)); ok {
			moved[owner] = append(moved[owner], q)
		}
	}
	owners := make([]string, 0, len(moved))
	for owner := range moved {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		current, _, err := c.store.get(ctx, owner)
		if err != nil {
			return err
		}
		if err := c.store.set(ctx, owner, merge(current, moved[owner])); err != nil {
			return err
		}
	}
	c.logger.Info("reassigned queues", "dead", dead, "queues", orphans)
	return nil
}

// merge appends the queues of added missing from current.
func merge(current, added []int) []int {
	res := append([]int{}, current...)
	for _, q := range added {
		found := false
		for _, c := range res {
			if c == q {
				found = true
				break
			}
		}
		if !found {
			res = append(res, q)
		}
	}
	return res
}
