package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaseFixture(t *testing.T) (*FetchAPI, *WriteAPI, *int64) {
	t.Helper()
	_, fetch, write := newTestAPIs(t)
	now := int64(1000)
	write.now = func() int64 { return now }
	return fetch, write, &now
}

func TestClaimOwnerLeaseVacant(t *testing.T) {
	fetch, write, _ := newLeaseFixture(t)
	ctx := context.Background()

	held, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)
	assert.True(t, held)

	lease, err := fetch.OwnerLeaseHolder(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, OwnerLease{OwnerID: "p1", ExpiresAt: 1030}, lease)
}

func TestClaimOwnerLeaseRejectsWhileHeld(t *testing.T) {
	_, write, _ := newLeaseFixture(t)
	ctx := context.Background()

	held, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)
	require.True(t, held)

	held, err = write.ClaimOwnerLease(ctx, testRoomID, "p2", 30)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestClaimOwnerLeaseRefreshByHolder(t *testing.T) {
	fetch, write, now := newLeaseFixture(t)
	ctx := context.Background()

	_, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)

	*now = 1020
	held, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)
	assert.True(t, held)

	lease, err := fetch.OwnerLeaseHolder(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), lease.ExpiresAt)
}

func TestClaimOwnerLeaseTakeoverAfterExpiry(t *testing.T) {
	fetch, write, now := newLeaseFixture(t)
	ctx := context.Background()

	_, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)

	*now = 1031
	held, err := write.ClaimOwnerLease(ctx, testRoomID, "p2", 30)
	require.NoError(t, err)
	assert.True(t, held)

	lease, err := fetch.OwnerLeaseHolder(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, "p2", lease.OwnerID)
}

func TestReleaseOwnerLease(t *testing.T) {
	fetch, write, _ := newLeaseFixture(t)
	ctx := context.Background()

	_, err := write.ClaimOwnerLease(ctx, testRoomID, "p1", 30)
	require.NoError(t, err)

	// A non-holder release changes nothing.
	require.NoError(t, write.ReleaseOwnerLease(ctx, testRoomID, "p2"))
	lease, err := fetch.OwnerLeaseHolder(ctx, testRoomID)
	require.NoError(t, err)
	assert.Equal(t, "p1", lease.OwnerID)

	require.NoError(t, write.ReleaseOwnerLease(ctx, testRoomID, "p1"))

	held, err := write.ClaimOwnerLease(ctx, testRoomID, "p2", 30)
	require.NoError(t, err)
	assert.True(t, held, "released lease is claimable immediately")
}
