package taskq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"unicode/utf8"

	"goa.design/relay/leader"
	"goa.design/relay/storage"
)

// Slave claims tasks from the priority queues and commits their results.
type Slave struct {
	*node
}

// NewSlave creates a slave node and starts its heartbeat and leadership
// loops. Call Close to stop it.
func NewSlave(ctx context.Context, backend storage.Backend, opts ...Option) (*Slave, error) {
	n, err := newNode(ctx, leader.RoleSlave, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &Slave{node: n}, nil
}

// Consume claims the highest score task of a priority queue into the slave
// ledger. Queues are tried in random order, each under a per-queue lock. A
// queue whose lock is not acquired within the lock timeout is skipped. ok
// is false when no queue yielded a task.
func (s *Slave) Consume(ctx context.Context) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	for _, q := range rand.Perm(s.queueCount) {
		key := s.keys.Queue(q)
		var (
			value string
			ok    bool
		)
		err := s.backend.WithLock(ctx, s.keys.SlaveConsumerLock(key), s.lockTimeout, func(ctx context.Context) error {
			var err error
			value, ok, err = s.ledger.ClaimMax(ctx, key, s.id)
			return err
		})
		if errors.Is(err, storage.ErrLockTimeout) {
			s.logger.Debug("queue busy, skipping", "queue", q)
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to consume queue %d: %w", q, err)
		}
		if ok {
			s.metrics.TaskClaimed(s.role)
			return value, true, nil
		}
	}
	return "", false, nil
}

// ConsumeUnlocked claims the highest score task of one of the queues
// assigned to the slave by the rebalance strategy, without locking. It must
// only be used when every queue has a single owner, that is when there are
// at least as many queues as slaves. ok is false when the slave owns no
// queue or all its queues are empty.
func (s *Slave) ConsumeUnlocked(ctx context.Context) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	queues, err := s.QueuesForWorker(ctx)
	if err != nil {
		return "", false, err
	}
	rand.Shuffle(len(queues), func(i, j int) { queues[i], queues[j] = queues[j], queues[i] })
	for _, q := range queues {
		key, err := s.queueKey(q)
		if err != nil {
			s.logger.Error(err, "queue", q)
			continue
		}
		value, ok, err := s.ledger.ClaimMax(ctx, key, s.id)
		if err != nil {
			return "", false, fmt.Errorf("failed to consume queue %d: %w", q, err)
		}
		if ok {
			s.metrics.TaskClaimed(s.role)
			return value, true, nil
		}
	}
	return "", false, nil
}

// Commit pushes value to the result queue then removes executeValue, the
// task that produced it, from the slave ledger. If the slave dies between
// the two steps the task is run again. value must be valid UTF-8.
func (s *Slave) Commit(ctx context.Context, value, executeValue string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return ErrInvalidValue
	}
	if err := s.backend.PushBack(ctx, s.keys.ResultQueue(), value); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	removed, err := s.ledger.Commit(ctx, s.id, executeValue)
	if err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}
	if !removed {
		s.logger.Warn("committed task not found in ledger")
		return nil
	}
	s.metrics.TaskCommitted(s.role)
	return nil
}

// QueuesForWorker returns the indices of the queues assigned to the slave.
func (s *Slave) QueuesForWorker(ctx context.Context) ([]int, error) {
	return s.leader.QueuesForWorker(ctx, s.id)
}
