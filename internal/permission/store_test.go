package permission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/permission"
	"github.com/custodia-fin/custodia/internal/shared"
)

var investor = identity.MustParse("0x00000000000000000000000000000000000000aa")

func TestAbsentRecordHasNoRights(t *testing.T) {
	store := permission.NewStore()
	now := time.Now()

	rec := store.Get(investor)
	require.False(t, rec.CanSend(now))
	require.False(t, rec.CanReceive(now))
}

func TestSetRejectsExpiredRecord(t *testing.T) {
	store := permission.NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prior := permission.Record{ReceiveAllowed: true, ExpiryTime: now.Add(time.Hour)}
	require.NoError(t, store.Set(investor, prior, now))

	expired := permission.Record{SendAllowed: true, ExpiryTime: now}
	err := store.Set(investor, expired, now)
	require.ErrorIs(t, err, shared.ErrExpiredPermission)

	// The prior record is untouched by the failed write.
	require.Equal(t, prior, store.Get(investor))
}

func TestSetRejectsNullIdentity(t *testing.T) {
	store := permission.NewStore()
	now := time.Now()
	err := store.Set(identity.Zero, permission.Record{ExpiryTime: now.Add(time.Hour)}, now)
	require.ErrorIs(t, err, shared.ErrInvalidIdentity)
}

func TestWindowEvaluation(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := permission.Record{
		SendAllowed:    true,
		ReceiveAllowed: true,
		SendTime:       base.Add(24 * time.Hour),
		ReceiveTime:    base,
		ExpiryTime:     base.Add(30 * 24 * time.Hour),
	}

	// Receive opens immediately, send is locked up for a day.
	require.False(t, rec.CanSend(base))
	require.True(t, rec.CanReceive(base))

	// Send activates exactly at its activation timestamp.
	require.True(t, rec.CanSend(base.Add(24*time.Hour)))

	// Both directions die at expiry regardless of the flags.
	require.False(t, rec.CanSend(rec.ExpiryTime))
	require.False(t, rec.CanReceive(rec.ExpiryTime))
}

func TestFlagsGateEachDirection(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := permission.Record{
		SendAllowed:    false,
		ReceiveAllowed: true,
		ExpiryTime:     now.Add(time.Hour),
	}
	require.False(t, rec.CanSend(now))
	require.True(t, rec.CanReceive(now))
}

func TestSetReplacesWholesale(t *testing.T) {
	store := permission.NewStore()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := permission.Record{SendAllowed: true, ReceiveAllowed: true, ExpiryTime: now.Add(time.Hour)}
	require.NoError(t, store.Set(investor, first, now))

	second := permission.Record{ReceiveAllowed: true, ExpiryTime: now.Add(2 * time.Hour)}
	require.NoError(t, store.Set(investor, second, now))

	got := store.Get(investor)
	require.Equal(t, second, got)
	require.False(t, got.CanSend(now), "send flag must not survive the overwrite")
}

func TestSnapshotIsACopy(t *testing.T) {
	store := permission.NewStore()
	now := time.Now()
	require.NoError(t, store.Set(investor, permission.Record{ExpiryTime: now.Add(time.Hour)}, now))

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	snap[investor] = permission.Record{}
	require.True(t, store.Get(investor).ExpiryTime.After(now))
}
