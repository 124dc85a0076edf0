package storage

import (
	"context"
	"errors"
	"time"
)

type (
	// Backend is the set of atomic primitives the coordination core needs
	// from the shared store. All methods are safe for concurrent use.
	// Methods that read a single value return ok == false when the value
	// does not exist, absence is never reported as an error.
	Backend interface {
		// Get returns the value of a scalar key.
		Get(ctx context.Context, key string) (string, bool, error)
		// Set stores a scalar value with no expiration.
		Set(ctx context.Context, key, value string) error
		// Delete deletes a key and reports whether it existed.
		Delete(ctx context.Context, key string) (bool, error)
		// Exists reports whether key exists.
		Exists(ctx context.Context, key string) (bool, error)
		// Purge deletes all the given keys and returns how many existed.
		Purge(ctx context.Context, keys ...string) (int64, error)

		// PushFront inserts values at the head of a list.
		PushFront(ctx context.Context, key string, values ...string) error
		// PushBack appends values at the tail of a list.
		PushBack(ctx context.Context, key string, values ...string) error
		// PopFront removes and returns the head of a list.
		PopFront(ctx context.Context, key string) (string, bool, error)
		// PopBack removes and returns the tail of a list.
		PopBack(ctx context.Context, key string) (string, bool, error)
		// PeekFront returns the head of a list without removing it.
		PeekFront(ctx context.Context, key string) (string, bool, error)
		// Len returns the length of a list.
		Len(ctx context.Context, key string) (int64, error)

		// HSet sets a hash field.
		HSet(ctx context.Context, key, field, value string) error
		// HGet returns a hash field.
		HGet(ctx context.Context, key, field string) (string, bool, error)
		// HGetAll returns all the fields of a hash.
		HGetAll(ctx context.Context, key string) (map[string]string, error)
		// HDel deletes hash fields and returns how many existed.
		HDel(ctx context.Context, key string, fields ...string) (int64, error)
		// HReplace atomically replaces the content of a hash.
		HReplace(ctx context.Context, key string, values map[string]string) error

		// ZAdd adds or updates a sorted set member and reports whether it
		// was added.
		ZAdd(ctx context.Context, key string, score float64, member string) (bool, error)
		// ZRem removes a sorted set member and reports whether it existed.
		ZRem(ctx context.Context, key, member string) (bool, error)
		// ZRangeByScore returns the members with a score in [min, max]
		// ordered by ascending score.
		ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)
		// ZMax returns the maximum score of a sorted set.
		ZMax(ctx context.Context, key string) (float64, bool, error)
		// ZPeekMax returns the member with the maximum score without
		// removing it.
		ZPeekMax(ctx context.Context, key string) (ScoredMember, bool, error)
		// ZCard returns the number of members of a sorted set.
		ZCard(ctx context.Context, key string) (int64, error)

		// WithLock acquires the distributed lock key, runs fn and releases
		// the lock on every exit path including panics. Acquisition is
		// retried until timeout elapses (ErrLockTimeout) or, when timeout
		// is zero or negative, until ctx is done. The context given to fn
		// is canceled if the lock lease is lost while fn runs.
		WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error) error
	}

	// Claimer is implemented by backends that update ledger hash fields
	// atomically. A ledger field holds a JSON array of strings. Claims move
	// a member out of a source and append it to the field in one step.
	Claimer interface {
		// ClaimMax moves the maximum score member of the sorted set zkey
		// into the ledger field of hash hkey.
		ClaimMax(ctx context.Context, zkey, hkey, field string) (string, bool, error)
		// ClaimFront moves the head of list lkey into the ledger field of
		// hash hkey.
		ClaimFront(ctx context.Context, lkey, hkey, field string) (string, bool, error)
		// AppendItem appends value to the ledger field of hash hkey.
		AppendItem(ctx context.Context, hkey, field, value string) error
		// RemoveItem removes the first occurrence of value from the ledger
		// field of hash hkey, deleting the field when it becomes empty, and
		// reports whether value was found.
		RemoveItem(ctx context.Context, hkey, field, value string) (bool, error)
	}

	// ScoredMember is a sorted set member and its score.
	ScoredMember struct {
		Member string
		Score  float64
	}
)

// ErrLockTimeout is returned by WithLock when the lock could not be acquired
// before the timeout elapsed.
var ErrLockTimeout = errors.New("storage: lock acquisition timed out")
