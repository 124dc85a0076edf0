// Package rebalance assigns the priority queues of a deployment to the live
// slave nodes. Assignments are persisted in a shared hash mapping each node
// ID to the JSON array of the queue indices it owns.
package rebalance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

type (
	// Strategy computes and maintains the queue assignment map.
	Strategy interface {
		// StartRebalance recomputes the whole map for activeNodes and
		// replaces the stored map. An empty activeNodes clears the map.
		StartRebalance(ctx context.Context, activeNodes []string, queueCount int) error
		// QueuesForWorker returns the queue indices owned by node. The map
		// is computed first if node has no entry yet. An empty slice means
		// node owns no queue.
		QueuesForWorker(ctx context.Context, node string, activeNodes []string, queueCount int) ([]int, error)
		// HandleNodeFailure removes dead from the map and hands its queues
		// to activeNodes.
		HandleNodeFailure(ctx context.Context, dead string, activeNodes []string, queueCount int) error
	}

	// Option is a strategy creation option.
	Option func(*options)

	options struct {
		logger relay.Logger
	}

	// store reads and writes the persisted assignment map.
	store struct {
		backend storage.Backend
		key     string
	}
)

const (
	// NameConsistentHash is the name of the consistent hashing strategy.
	NameConsistentHash = "consistent-hash"
	// NameRoundRobin is the name of the round robin strategy.
	NameRoundRobin = "round-robin"
)

// ErrUnknownStrategy is returned by New for unsupported strategy names.
var ErrUnknownStrategy = errors.New("rebalance: unknown strategy")

// WithLogger sets the strategy logger.
func WithLogger(logger relay.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New returns the strategy with the given name storing its map in the hash
// key of backend. Names are "consistent-hash" and "round-robin", the
// underscore spellings are accepted too.
func New(name string, backend storage.Backend, key string, opts ...Option) (Strategy, error) {
	o := &options{logger: relay.NoopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = relay.NoopLogger()
	}
	s := store{backend: backend, key: key}
	switch Canonical(name) {
	case NameConsistentHash:
		return newConsistentHash(s, o.logger.WithPrefix("strategy", NameConsistentHash)), nil
	case NameRoundRobin:
		return newRoundRobin(s, o.logger.WithPrefix("strategy", NameRoundRobin)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Canonical returns the canonical spelling of a strategy name or name
// itself if it is not a known strategy.
func Canonical(name string) string {
	switch name {
	case NameConsistentHash, "consistent_hash":
		return NameConsistentHash
	case NameRoundRobin, "round_robin":
		return NameRoundRobin
	}
	return name
}

// queuesForWorker implements the lazy bootstrap shared by all strategies.
func queuesForWorker(ctx context.Context, s store, start func() error, node string) ([]int, error) {
	queues, ok, err := s.get(ctx, node)
	if err != nil || ok {
		return queues, err
	}
	if err := start(); err != nil {
		return nil, err
	}
	queues, _, err = s.get(ctx, node)
	if queues == nil && err == nil {
		queues = []int{}
	}
	return queues, err
}

// get returns the queues of node and whether node has an entry.
func (s store) get(ctx context.Context, node string) ([]int, bool, error) {
	raw, ok, err := s.backend.HGet(ctx, s.key, node)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read assignment of %q: %w", node, err)
	}
	if !ok {
		return nil, false, nil
	}
	queues, err := decodeQueues(node, raw)
	if err != nil {
		return nil, false, err
	}
	return queues, true, nil
}

// set writes the queues of node.
func (s store) set(ctx context.Context, node string, queues []int) error {
	raw, err := encodeQueues(queues)
	if err != nil {
		return err
	}
	if err := s.backend.HSet(ctx, s.key, node, raw); err != nil {
		return fmt.Errorf("failed to write assignment of %q: %w", node, err)
	}
	return nil
}

// replace atomically replaces the whole map.
func (s store) replace(ctx context.Context, assignment map[string][]int) error {
	values := make(map[string]string, len(assignment))
	for node, queues := range assignment {
		raw, err := encodeQueues(queues)
		if err != nil {
			return err
		}
		values[node] = raw
	}
	if err := s.backend.HReplace(ctx, s.key, values); err != nil {
		return fmt.Errorf("failed to write assignment map: %w", err)
	}
	return nil
}

// remove deletes the entry of node.
func (s store) remove(ctx context.Context, node string) error {
	if _, err := s.backend.HDel(ctx, s.key, node); err != nil {
		return fmt.Errorf("failed to delete assignment of %q: %w", node, err)
	}
	return nil
}

// Load returns the assignment map stored in the hash key of backend.
func Load(ctx context.Context, backend storage.Backend, key string) (map[string][]int, error) {
	m, err := backend.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment map: %w", err)
	}
	res := make(map[string][]int, len(m))
	for node, raw := range m {
		queues, err := decodeQueues(node, raw)
		if err != nil {
			return nil, err
		}
		res[node] = queues
	}
	return res, nil
}

func encodeQueues(queues []int) (string, error) {
	if queues == nil {
		queues = []int{}
	}
	b, err := json.Marshal(queues)
	if err != nil {
		return "", fmt.Errorf("failed to encode assignment: %w", err)
	}
	return string(b), nil
}

func decodeQueues(node, raw string) ([]int, error) {
	queues := []int{}
	if err := json.Unmarshal([]byte(raw), &queues); err != nil {
		return nil, fmt.Errorf("failed to decode assignment of %q: %w", node, err)
	}
	return queues, nil
}

// normalize returns the sorted, deduplicated list of non-empty node IDs.
func normalize(nodes []string) []string {
	seen := make(map[string]struct{}, len(nodes))
	res := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
