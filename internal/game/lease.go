package game

import (
	"context"
	"strconv"
	"strings"

	"bubbletactics/internal/store"
)

// The owner lease pins "exactly one client performs round-advancing
// writes" to a CAS-guarded record instead of the informal earliest-joiner
// convention. The earliest joiner claims it first; any client may take
// over once the previous holder's lease expires, which is how a crashed
// owner's duties move to a survivor.
//
// The lease is a single leaf encoded as "ownerId|expiresAt" so it can be
// swapped atomically with the store's transaction primitive.

const leaseFieldSeparator = "|"

// OwnerLease is the decoded leader record for a room.
type OwnerLease struct {
	OwnerID   string
	ExpiresAt int64
}

func encodeLease(lease OwnerLease) string {
	return lease.OwnerID + leaseFieldSeparator + strconv.FormatInt(lease.ExpiresAt, 10)
}

func decodeLease(raw string) OwnerLease {
	parts := strings.SplitN(raw, leaseFieldSeparator, 2)
	if len(parts) != 2 {
		return OwnerLease{}
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return OwnerLease{}
	}
	return OwnerLease{OwnerID: parts[0], ExpiresAt: expires}
}

// ClaimOwnerLease tries to acquire or refresh the room's owner lease for
// playerID. It succeeds when the lease is vacant, expired, or already
// held by the caller. Returns whether the caller holds the lease after
// the attempt.
func (w *WriteAPI) ClaimOwnerLease(ctx context.Context, roomID, playerID string, ttlSecs int64) (bool, error) {
	held := false
	err := w.store.Transaction(ctx, ownerLeasePath(roomID), func(current interface{}) (interface{}, error) {
		now := w.now()
		lease := OwnerLease{}
		if current != nil {
			lease = decodeLease(store.Snapshot{Exists: true, Value: current}.Str())
		}

		if lease.OwnerID == "" || lease.OwnerID == playerID || lease.ExpiresAt <= now {
			held = true
			return encodeLease(OwnerLease{OwnerID: playerID, ExpiresAt: now + ttlSecs}), nil
		}

		held = false
		return current, nil
	})
	if err != nil {
		return false, err
	}
	return held, nil
}

// ReleaseOwnerLease vacates the lease if the caller holds it, letting the
// next claimant take over immediately instead of waiting for expiry.
func (w *WriteAPI) ReleaseOwnerLease(ctx context.Context, roomID, playerID string) error {
	return w.store.Transaction(ctx, ownerLeasePath(roomID), func(current interface{}) (interface{}, error) {
		if current == nil {
			return current, nil
		}
		lease := decodeLease(store.Snapshot{Exists: true, Value: current}.Str())
		if lease.OwnerID != playerID {
			return current, nil
		}
		return "", nil
	})
}

// OwnerLeaseHolder reads the current lease without mutating it.
func (f *FetchAPI) OwnerLeaseHolder(ctx context.Context, roomID string) (OwnerLease, error) {
	snap, err := f.store.Get(ctx, ownerLeasePath(roomID))
	if err != nil {
		return OwnerLease{}, err
	}
	if !snap.Exists || snap.Str() == "" {
		return OwnerLease{}, nil
	}
	return decodeLease(snap.Str()), nil
}
