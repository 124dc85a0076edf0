// Package leader implements node heartbeats and the leader-elected failure
// detection. Every node runs a heartbeat loop and competes for a single
// leadership lock. The leader periodically scans the heartbeats, hands the
// in-flight work of expired nodes back to the queues and asks the rebalance
// strategy to reassign their queues.
package leader

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"goa.design/relay/ledger"
	"goa.design/relay/metrics"
	"goa.design/relay/rebalance"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

// Service runs the heartbeat and leadership loops of one node.
type Service struct {
	// NodeID is the ID of the node.
	NodeID string

	backend         storage.Backend
	keys            storage.Keys
	ledger          *ledger.Ledger
	strategy        rebalance.Strategy
	clock           clockwork.Clock
	logger          relay.Logger
	metrics         *metrics.Metrics
	interval        time.Duration
	expirationCount int
	queueCount      int

	lock    sync.Mutex
	leading bool
	started bool
	closing bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns the leader service of node nodeID. strategy maintains the
// queue assignment map when slaves expire. Call Start to run the loops.
func New(nodeID string, backend storage.Backend, strategy rebalance.Strategy, opts ...Option) *Service {
	o, clamped := parseOptions(opts...)
	logger := o.logger.WithPrefix("node", nodeID)
	if clamped {
		logger.Warn("heartbeat settings raised to their minimum",
			"interval", o.interval, "expirationCount", o.expirationCount)
	}
	return &Service{
		NodeID:          nodeID,
		backend:         backend,
		keys:            o.keys,
		ledger:          ledger.New(backend, o.keys.ExecuteHash()),
		strategy:        strategy,
		clock:           o.clock,
		logger:          logger,
		metrics:         o.metrics,
		interval:        o.interval,
		expirationCount: o.expirationCount,
		queueCount:      o.queueCount,
	}
}

// Start starts the heartbeat and leadership loops. The loops run until Close
// is called, cancelling ctx does not stop them. Start is a no-op if the
// service was already started or closed.
func (s *Service) Start(ctx context.Context) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started || s.closing {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.wg.Add(2)
	relay.Go(s.logger, func() {
		defer s.wg.Done()
		s.heartLoop(ctx)
	})
	relay.Go(s.logger, func() {
		defer s.wg.Done()
		s.Seize(ctx)
	})
	s.logger.Info("started", "interval", s.interval, "expiration", s.ExpirationThreshold())
}

// Heart records that the node is alive now.
func (s *Service) Heart(ctx context.Context) error {
	now := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	if err := s.backend.HSet(ctx, s.keys.HeartHash(), s.NodeID, now); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return nil
}

// Seize competes for the leadership lock until ctx is done. Once acquired
// the node runs Listen for as long as the lock is held, and competes again
// if it is lost.
func (s *Service) Seize(ctx context.Context) {
	for {
		err := s.backend.WithLock(ctx, s.keys.LeaderLock(), 0, s.Listen)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error(fmt.Errorf("failed to seize leadership: %w", err))
			continue
		}
		s.logger.Warn("leadership lost")
	}
}

// Listen records the node as leader and runs failure detection every
// heartbeat interval, starting immediately, until ctx is done. It must be
// called while holding the leadership lock.
func (s *Service) Listen(ctx context.Context) error {
	if err := s.backend.Set(ctx, s.keys.LeaderName(), s.NodeID); err != nil {
		s.logger.Error(fmt.Errorf("failed to record leader: %w", err))
	}
	s.setLeading(true)
	defer s.setLeading(false)
	s.logger.Info("elected leader")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Detect(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// ActiveNodes returns the sorted IDs of the nodes whose heartbeat has not
// expired.
func (s *Service) ActiveNodes(ctx context.Context) ([]string, error) {
	alive, _, err := s.scan(ctx)
	return alive, err
}

// ActiveSlaves returns the sorted IDs of the slave nodes whose heartbeat
// has not expired.
func (s *Service) ActiveSlaves(ctx context.Context) ([]string, error) {
	alive, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return slaves(alive), nil
}

// Leader returns the ID of the last node recorded as leader.
func (s *Service) Leader(ctx context.Context) (string, bool, error) {
	id, ok, err := s.backend.Get(ctx, s.keys.LeaderName())
	if err != nil {
		return "", false, fmt.Errorf("failed to read leader: %w", err)
	}
	return id, ok, nil
}

// IsLeader reports whether this node currently holds the leadership.
func (s *Service) IsLeader() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.leading
}

// QueuesForWorker returns the queue indices assigned to node.
func (s *Service) QueuesForWorker(ctx context.Context, node string) ([]int, error) {
	active, err := s.ActiveSlaves(ctx)
	if err != nil {
		return nil, err
	}
	return s.strategy.QueuesForWorker(ctx, node, active, s.queueCount)
}

// Rebalance recomputes the whole queue assignment map over the active
// slaves.
func (s *Service) Rebalance(ctx context.Context) error {
	active, err := s.ActiveSlaves(ctx)
	if err != nil {
		return err
	}
	if err := s.strategy.StartRebalance(ctx, active, s.queueCount); err != nil {
		return fmt.Errorf("failed to rebalance: %w", err)
	}
	s.metrics.Rebalanced(metrics.ReasonManual)
	s.logger.Info("rebalanced", "slaves", len(active))
	return nil
}

// HeartbeatInterval returns the effective heartbeat interval.
func (s *Service) HeartbeatInterval() time.Duration {
	return s.interval
}

// ExpirationThreshold returns the duration after which a silent node is
// expired.
func (s *Service) ExpirationThreshold() time.Duration {
	return time.Duration(s.expirationCount) * s.interval
}

// Close stops the loops, releases the leadership lock if held and marks the
// node heartbeat as expired so that the leader recovers its in-flight work.
// Close does not clear the leader record. It is safe to call Close multiple
// times.
func (s *Service) Close(ctx context.Context) error {
	s.lock.Lock()
	if s.closing {
		s.lock.Unlock()
		return nil
	}
	s.closing = true
	cancel := s.cancel
	s.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if err := s.backend.HSet(ctx, s.keys.HeartHash(), s.NodeID, "0"); err != nil {
		return fmt.Errorf("failed to mark node as stopped: %w", err)
	}
	s.logger.Info("closed")
	return nil
}

func (s *Service) heartLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Heart(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (s *Service) setLeading(leading bool) {
	s.lock.Lock()
	s.leading = leading
	s.lock.Unlock()
	s.metrics.SetLeader(leading)
}

// scan splits the heartbeat map into alive and expired node IDs, both
// sorted.
func (s *Service) scan(ctx context.Context) (alive, expired []string, err error) {
	hearts, err := s.backend.HGetAll(ctx, s.keys.HeartHash())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}
	now := s.clock.Now()
	for node, last := range hearts {
		if s.expired(now, last) {
			expired = append(expired, node)
		} else {
			alive = append(alive, node)
		}
	}
	sort.Strings(alive)
	sort.Strings(expired)
	return alive, expired, nil
}

// expired reports whether a node last seen at the Unix milliseconds
// timestamp last is expired at now. Unparsable timestamps are expired.
func (s *Service) expired(now time.Time, last string) bool {
	ms, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return true
	}
	return now.UnixMilli()-ms > s.ExpirationThreshold().Milliseconds()
}

func slaves(nodes []string) []string {
	var res []string
	for _, n := range nodes {
		if RoleOf(n) == RoleSlave {
			res = append(res, n)
		}
	}
	return res
}
