package taskq

import (
	"context"
	"fmt"
	"unicode/utf8"

	"goa.design/relay/leader"
	"goa.design/relay/storage"
)

// Master produces tasks and relays the results committed by slaves.
type Master struct {
	*node
}

// NewMaster creates a master node and starts its heartbeat and leadership
// loops. Call Close to stop it.
func NewMaster(ctx context.Context, backend storage.Backend, opts ...Option) (*Master, error) {
	n, err := newNode(ctx, leader.RoleMaster, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &Master{node: n}, nil
}

// Send adds value to the priority queue with the given index. Higher scores
// are consumed first. value must be valid UTF-8 and unique within the
// queue, sending the same value twice updates its score.
func (m *Master) Send(ctx context.Context, queue int, score float64, value string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return ErrInvalidValue
	}
	key, err := m.queueKey(queue)
	if err != nil {
		return err
	}
	if _, err := m.backend.ZAdd(ctx, key, score, value); err != nil {
		return fmt.Errorf("failed to send task: %w", err)
	}
	m.metrics.TaskSent()
	m.logger.Debug("sent", "queue", queue, "score", score)
	return nil
}

// Consume claims the oldest result into the master ledger. Masters sharing
// the namespace consume one at a time. ok is false if there is no result.
// The result must be committed once processed.
func (m *Master) Consume(ctx context.Context) (value string, ok bool, err error) {
	if err := m.checkOpen(); err != nil {
		return "", false, err
	}
	err = m.backend.WithLock(ctx, m.keys.MasterConsumerLock(), 0, func(ctx context.Context) error {
		var err error
		value, ok, err = m.ledger.ClaimFront(ctx, m.keys.ResultQueue(), m.id)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to consume result: %w", err)
	}
	if ok {
		m.metrics.TaskClaimed(m.role)
	}
	return value, ok, nil
}

// Commit removes a consumed result from the master ledger. It must be called
// once the result has been durably processed.
func (m *Master) Commit(ctx context.Context, resultValue string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	removed, err := m.ledger.Commit(ctx, m.id, resultValue)
	if err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	if !removed {
		m.logger.Warn("committed result not found in ledger")
		return nil
	}
	m.metrics.TaskCommitted(m.role)
	return nil
}

// Delete removes a task not claimed yet from a priority queue and reports
// whether it was found.
func (m *Master) Delete(ctx context.Context, queue int, value string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	key, err := m.queueKey(queue)
	if err != nil {
		return false, err
	}
	return m.backend.ZRem(ctx, key, value)
}

// DeleteAny removes a task not claimed yet from all the priority queues and
// reports whether it was found in any.
func (m *Master) DeleteAny(ctx context.Context, value string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	var found bool
	for _, key := range m.keys.Queues(m.queueCount) {
		ok, err := m.backend.ZRem(ctx, key, value)
		if err != nil {
			return found, err
		}
		found = found || ok
	}
	return found, nil
}

// Queue returns the tasks of a priority queue ordered by ascending score.
func (m *Master) Queue(ctx context.Context, queue int) ([]storage.ScoredMember, error) {
	key, err := m.queueKey(queue)
	if err != nil {
		return nil, err
	}
	return m.backend.ZRangeByScore(ctx, key, minScore, maxScore)
}

// AllQueues returns the tasks of every priority queue, indexed by queue.
func (m *Master) AllQueues(ctx context.Context) ([][]storage.ScoredMember, error) {
	res := make([][]storage.ScoredMember, m.queueCount)
	for i := range res {
		q, err := m.Queue(ctx, i)
		if err != nil {
			return nil, err
		}
		res[i] = q
	}
	return res, nil
}

// QueueMax returns the highest score of a priority queue, 0 when empty.
func (m *Master) QueueMax(ctx context.Context, queue int) (float64, error) {
	key, err := m.queueKey(queue)
	if err != nil {
		return 0, err
	}
	score, _, err := m.backend.ZMax(ctx, key)
	return score, err
}

// QueueSize returns the number of tasks in a priority queue.
func (m *Master) QueueSize(ctx context.Context, queue int) (int64, error) {
	key, err := m.queueKey(queue)
	if err != nil {
		return 0, err
	}
	return m.backend.ZCard(ctx, key)
}

// QueueSizes returns the number of tasks in each priority queue.
func (m *Master) QueueSizes(ctx context.Context) ([]int64, error) {
	return QueueSizes(ctx, m.backend, m.keys, m.queueCount)
}

// ResultQueueSum returns the number of results waiting to be consumed.
func (m *Master) ResultQueueSum(ctx context.Context) (int64, error) {
	return m.backend.Len(ctx, m.keys.ResultQueue())
}
