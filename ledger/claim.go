package ledger

import (
	"context"
	"fmt"

	"goa.design/relay/storage"
)

// ClaimMax moves the highest score payload of the sorted set zkey into the
// node ledger and returns it. ok is false when the set is empty.
//
// When the backend implements storage.Claimer the move is atomic. Otherwise
// the payload is read, appended to the ledger and then removed from the
// set: two consumers racing on the same set may both claim the payload.
func (l *Ledger) ClaimMax(ctx context.Context, zkey, node string) (string, bool, error) {
	if c, ok := l.backend.(storage.Claimer); ok {
		return c.ClaimMax(ctx, zkey, l.key, node)
	}
	top, ok, err := l.backend.ZPeekMax(ctx, zkey)
	if err != nil || !ok {
		return "", false, err
	}
	if err := l.Append(ctx, node, top.Member); err != nil {
		return "", false, err
	}
	if _, err := l.backend.ZRem(ctx, zkey, top.Member); err != nil {
		return "", false, fmt.Errorf("failed to remove claimed payload: %w", err)
	}
	return top.Member, true, nil
}

// ClaimFront moves the head of the list lkey into the node ledger and
// returns it. ok is false when the list is empty. The fallback sequence
// used when the backend is not a storage.Claimer has the same duplicate
// window as ClaimMax.
func (l *Ledger) ClaimFront(ctx context.Context, lkey, node string) (string, bool, error) {
	if c, ok := l.backend.(storage.Claimer); ok {
		return c.ClaimFront(ctx, lkey, l.key, node)
	}
	head, ok, err := l.backend.PeekFront(ctx, lkey)
	if err != nil || !ok {
		return "", false, err
	}
	if err := l.Append(ctx, node, head); err != nil {
		return "", false, err
	}
	if _, _, err := l.backend.PopFront(ctx, lkey); err != nil {
		return "", false, fmt.Errorf("failed to remove claimed payload: %w", err)
	}
	return head, true, nil
}
