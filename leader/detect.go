package leader

import (
	"context"
	"errors"
	"fmt"

	"goa.design/relay/metrics"
)

// ErrUnknownNodeRole is returned by Detect for expired heartbeat entries
// whose node ID does not start with a known role.
var ErrUnknownNodeRole = errors.New("leader: unknown node role")

// Detect runs one failure detection pass. For each expired node it hands
// the node in-flight payloads back to the queues, deletes the node ledger
// and heartbeat and lets the rebalance strategy reassign its queues. A
// failure on one node does not prevent processing the others, Detect
// returns the errors joined.
func (s *Service) Detect(ctx context.Context) error {
	alive, expired, err := s.scan(ctx)
	if err != nil {
		return err
	}
	active := slaves(alive)
	var errs []error
	for _, dead := range expired {
		if err := s.recoverNode(ctx, dead, active); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recoverNode processes the expired node dead.
func (s *Service) recoverNode(ctx context.Context, dead string, activeSlaves []string) error {
	role := RoleOf(dead)
	if role == "" {
		return fmt.Errorf("%w: %q", ErrUnknownNodeRole, dead)
	}
	payloads, err := s.ledger.Get(ctx, dead)
	if err != nil {
		return err
	}
	s.logger.Warn("node expired", "dead", dead, "inflight", len(payloads))
	s.metrics.NodeExpired()

	if len(payloads) > 0 {
		switch role {
		case RoleMaster:
			err = s.recoverMaster(ctx, payloads)
		case RoleSlave:
			err = s.recoverSlave(ctx, payloads)
		}
		if err != nil {
			return fmt.Errorf("failed to recover payloads of %q: %w", dead, err)
		}
		s.metrics.TasksRecovered(role, len(payloads))
	}

	if _, err := s.ledger.Delete(ctx, dead); err != nil {
		return err
	}
	if _, err := s.backend.HDel(ctx, s.keys.HeartHash(), dead); err != nil {
		return fmt.Errorf("failed to delete heartbeat of %q: %w", dead, err)
	}
	if err := s.strategy.HandleNodeFailure(ctx, dead, activeSlaves, s.queueCount); err != nil {
		return fmt.Errorf("failed to rebalance after %q failure: %w", dead, err)
	}
	s.metrics.Rebalanced(metrics.ReasonNodeFailure)
	s.logger.Info("node recovered", "dead", dead, "slaves", len(activeSlaves))
	return nil
}

// recoverMaster puts the results a master was relaying back at the front of
// the result queue, in ledger order.
func (s *Service) recoverMaster(ctx context.Context, payloads []string) error {
	reversed := make([]string, len(payloads))
	for i, p := range payloads {
		reversed[len(payloads)-1-i] = p
	}
	return s.backend.PushFront(ctx, s.keys.ResultQueue(), reversed...)
}

// recoverSlave puts the tasks a slave was running back in the highest
// priority queue with the highest score of that queue so they are consumed
// next.
func (s *Service) recoverSlave(ctx context.Context, payloads []string) error {
	queue := s.keys.Queue(0)
	score, _, err := s.backend.ZMax(ctx, queue)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := s.backend.ZAdd(ctx, queue, score, p); err != nil {
			return err
		}
	}
	return nil
}
