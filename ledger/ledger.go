// Package ledger tracks the payloads each node has taken but not yet
// finished. Entries are kept in a shared hash keyed by node ID so that the
// leader can hand the work of a dead node back to the queues.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"goa.design/relay/storage"
)

// ErrInvalidPayload is returned by Append for payloads that are not valid
// UTF-8. Such payloads would not survive the JSON encoding of the ledger.
var ErrInvalidPayload = errors.New("ledger: payload is not valid UTF-8")

// Ledger is the execute tracker. Each hash field holds the JSON array of
// the payloads in flight on one node, in claim order. Empty lists are never
// stored, the field is deleted instead.
//
// Appends and commits are atomic when the backend implements
// storage.Claimer. Otherwise they are read-modify-write sequences
// serialized by the Ledger: concurrent writers of the same node must share
// one Ledger value.
type Ledger struct {
	backend storage.Backend
	key     string
	lock    sync.Mutex
}

// New returns a ledger stored in the hash key of backend.
func New(backend storage.Backend, key string) *Ledger {
	return &Ledger{backend: backend, key: key}
}

// Key returns the key of the ledger hash.
func (l *Ledger) Key() string {
	return l.key
}

// Append adds payload to the end of the node ledger.
func (l *Ledger) Append(ctx context.Context, node, payload string) error {
	if !utf8.ValidString(payload) {
		return ErrInvalidPayload
	}
	if c, ok := l.backend.(storage.Claimer); ok {
		return c.AppendItem(ctx, l.key, node, payload)
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	list, err := l.Get(ctx, node)
	if err != nil {
		return err
	}
	return l.write(ctx, node, append(list, payload))
}

// Commit removes exactly one occurrence of payload from the node ledger and
// reports whether it was found.
func (l *Ledger) Commit(ctx context.Context, node, payload string) (bool, error) {
	if c, ok := l.backend.(storage.Claimer); ok {
		return c.RemoveItem(ctx, l.key, node, payload)
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	list, err := l.Get(ctx, node)
	if err != nil {
		return false, err
	}
	for i, p := range list {
		if p == payload {
			return true, l.write(ctx, node, append(list[:i], list[i+1:]...))
		}
	}
	return false, nil
}

// Sum returns the number of payloads in flight on node.
func (l *Ledger) Sum(ctx context.Context, node string) (int, error) {
	list, err := l.Get(ctx, node)
	return len(list), err
}

// Get returns the payloads in flight on node in claim order.
func (l *Ledger) Get(ctx context.Context, node string) ([]string, error) {
	raw, ok, err := l.backend.HGet(ctx, l.key, node)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger of %q: %w", node, err)
	}
	if !ok {
		return nil, nil
	}
	return decode(node, raw)
}

// All returns the ledger of every node that has payloads in flight.
func (l *Ledger) All(ctx context.Context) (map[string][]string, error) {
	m, err := l.backend.HGetAll(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledgers: %w", err)
	}
	res := make(map[string][]string, len(m))
	for node, raw := range m {
		list, err := decode(node, raw)
		if err != nil {
			return nil, err
		}
		res[node] = list
	}
	return res, nil
}

// Delete deletes the node ledger and reports whether it existed.
func (l *Ledger) Delete(ctx context.Context, node string) (bool, error) {
	n, err := l.backend.HDel(ctx, l.key, node)
	if err != nil {
		return false, fmt.Errorf("failed to delete ledger of %q: %w", node, err)
	}
	return n > 0, nil
}

func (l *Ledger) write(ctx context.Context, node string, list []string) error {
	if len(list) == 0 {
		_, err := l.Delete(ctx, node)
		return err
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode ledger of %q: %w", node, err)
	}
	if err := l.backend.HSet(ctx, l.key, node, string(b)); err != nil {
		return fmt.Errorf("failed to write ledger of %q: %w", node, err)
	}
	return nil
}

func decode(node, raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to decode ledger of %q: %w", node, err)
	}
	return list, nil
}
