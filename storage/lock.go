package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"goa.design/relay/relay"
)

// errLockHeld signals a failed acquisition attempt to the retry loop.
var errLockHeld = errors.New("lock held by another owner")

// WithLock acquires the lock stored at key, runs fn and releases the lock.
// See Backend.WithLock.
func (r *Redis) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error) error {
	token, err := r.acquire(ctx, key, timeout)
	if err != nil {
		return err
	}
	r.logger.Debug("lock acquired", "key", key)

	lockCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	relay.Go(r.logger, func() {
		defer wg.Done()
		r.keepLease(lockCtx, cancel, key, token)
	})
	defer func() {
		cancel()
		wg.Wait()
		// The caller context may be done already, release regardless.
		rctx, rcancel := context.WithTimeout(context.Background(), r.lockLease)
		defer rcancel()
		if err := luaUnlock.Run(rctx, r.rdb, []string{key}, token).Err(); err != nil {
			r.logger.Error(fmt.Errorf("failed to release lock: %w", err), "key", key)
			return
		}
		r.logger.Debug("lock released", "key", key)
	}()

	return fn(lockCtx)
}

// acquire retries SET NX with a fresh owner token until it succeeds, the
// timeout elapses or ctx is done.
func (r *Redis) acquire(ctx context.Context, key string, timeout time.Duration) (string, error) {
	token := ulid.Make().String()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.lockRetryInitial
	b.MaxInterval = r.lockRetryMax
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	// The wait is bounded by a deadline rather than MaxElapsedTime which
	// gives up as soon as the next interval would overrun the timeout.
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	try := func() error {
		ok, err := r.rdb.SetNX(waitCtx, key, token, r.lockLease).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return backoff.Permanent(waitCtx.Err())
			}
			r.logger.Error(fmt.Errorf("failed to acquire lock: %w", err), "key", key)
			return err
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}
	err := backoff.Retry(try, backoff.WithContext(b, waitCtx))
	switch {
	case err == nil:
		return token, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case waitCtx.Err() != nil, errors.Is(err, errLockHeld):
		return "", ErrLockTimeout
	default:
		return "", fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
}

// keepLease renews the lock lease every third of its duration until ctx is
// done. It cancels ctx when the lock is no longer owned.
func (r *Redis) keepLease(ctx context.Context, cancel context.CancelFunc, key, token string) {
	ticker := time.NewTicker(r.lockLease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := luaRenew.Run(ctx, r.rdb, []string{key}, token, r.lockLease.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error(fmt.Errorf("failed to renew lock lease: %w", err), "key", key)
				continue
			}
			if n == 0 {
				r.logger.Warn("lock lost", "key", key)
				cancel()
				return
			}
		}
	}
}
