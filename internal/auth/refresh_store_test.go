package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRefreshStore_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")

	rec, secret, err := f.store.Create(ctx, s.Identity.SubjectID, "firefox")
	require.NoError(t, err)

	assert.Len(t, secret, 64, "32 random bytes, hex encoded")
	assert.NotContains(t, rec.SecretHash, secret)
	assert.Equal(t, f.clock.Now().Add(DefaultRefreshTTL), rec.ExpiresAt)
	assert.Nil(t, rec.RevokedAt)

	found, err := f.store.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.SubjectID, found.SubjectID)
	assert.Equal(t, "firefox", found.UserAgent)
	assert.True(t, found.ExpiresAt.Equal(rec.ExpiresAt))

	ok, err := f.hasher.Verify(secret, found.SecretHash)
	require.NoError(t, err)
	assert.True(t, ok, "stored digest matches the returned secret")
}

func TestRefreshStore_FindMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Find(context.Background(), "rt-missing")
	assert.ErrorIs(t, err, ErrRefreshNotFound)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshStore_RevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")

	require.NoError(t, f.store.Revoke(ctx, s.Refresh.RecordID))
	first, err := f.store.Find(ctx, s.Refresh.RecordID)
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.store.Revoke(ctx, s.Refresh.RecordID))
	second, err := f.store.Find(ctx, s.Refresh.RecordID)
	require.NoError(t, err)
	assert.True(t, first.RevokedAt.Equal(*second.RevokedAt), "second revoke must not move revoked_at")

	require.NoError(t, f.store.Revoke(ctx, "rt-missing"))
}

func TestRefreshStore_RevokeAllFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")
	subject := s.Identity.SubjectID

	for range 3 {
		_, _, err := f.store.Create(ctx, subject, "")
		require.NoError(t, err)
	}
	other := f.signup(t, "bob@example.com")

	n, err := f.store.RevokeAllFor(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = f.store.RevokeAllFor(ctx, subject)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := f.store.Find(ctx, other.Refresh.RecordID)
	require.NoError(t, err)
	assert.Nil(t, rec.RevokedAt, "other subjects are untouched")
}

func TestRefreshStore_Rotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")
	subject := s.Identity.SubjectID

	next, secret, err := f.store.Rotate(ctx, s.Refresh.RecordID, subject, "safari")
	require.NoError(t, err)
	assert.NotEqual(t, s.Refresh.RecordID, next.ID)
	assert.NotEmpty(t, secret)

	old, err := f.store.Find(ctx, s.Refresh.RecordID)
	require.NoError(t, err)
	assert.NotNil(t, old.RevokedAt)

	_, _, err = f.store.Rotate(ctx, s.Refresh.RecordID, subject, "safari")
	assert.ErrorIs(t, err, ErrRefreshRevoked)

	_, _, err = f.store.Rotate(ctx, next.ID, "usr-someone-else", "")
	assert.ErrorIs(t, err, ErrRefreshRevoked, "a record only rotates for its own subject")
}

func TestRefreshStore_RotateExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")

	f.clock.Advance(DefaultRefreshTTL + time.Second)

	_, _, err := f.store.Rotate(ctx, s.Refresh.RecordID, s.Identity.SubjectID, "")
	assert.ErrorIs(t, err, ErrRefreshRevoked)

	var live int
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_records WHERE subject_id = ?`, s.Identity.SubjectID).Scan(&live))
	assert.Equal(t, 1, live, "a failed rotation creates no successor")
}

func TestRefreshStore_RotateSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.signup(t, "alice@example.com")

	const racers = 8
	results := make([]error, racers)
	var g errgroup.Group
	for i := range racers {
		g.Go(func() error {
			_, _, err := f.store.Rotate(ctx, s.Refresh.RecordID, s.Identity.SubjectID, "")
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrRefreshRevoked)
	}
	assert.Equal(t, 1, wins)

	var total int
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_records WHERE subject_id = ?`, s.Identity.SubjectID).Scan(&total))
	assert.Equal(t, 2, total, "original plus exactly one successor")
}

func TestRefreshStore_WithRefreshTTL(t *testing.T) {
	f := newFixture(t)
	s := f.signup(t, "alice@example.com")

	// A zero TTL is ignored, so the hour sticks.
	store := NewRefreshStore(f.db, f.hasher, WithStoreClock(f.clock.Now), WithRefreshTTL(time.Hour), WithRefreshTTL(0))
	rec, _, err := store.Create(context.Background(), s.Identity.SubjectID, "go-test")
	require.NoError(t, err)
	assert.WithinDuration(t, f.clock.Now().Add(time.Hour), rec.ExpiresAt, time.Millisecond)
}
