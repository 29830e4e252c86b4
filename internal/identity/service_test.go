package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio-store/internal/domain/user"
	"studio-store/internal/infra/badger"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, storage.KV, *clock) {
	t.Helper()
	db, err := badger.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv := badger.NewKV(db)
	svc := NewService(kv, Config{})
	clk := &clock{now: t0}
	svc.now = clk.Now
	return svc, kv, clk
}

func TestAuthenticate_NewUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	profile, sess, err := svc.Authenticate(ctx, user.Identity{ID: "u1", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)

	assert.True(t, profile.FirstLoginAt.Equal(t0))
	assert.True(t, profile.LastLoginAt.Equal(t0))
	assert.True(t, profile.ExpiresAt.Equal(t0.Add(DefaultUserValidity)))
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "ada@example.com", sess.Email)
	assert.True(t, sess.ExpiresAt.Equal(t0.Add(DefaultSessionValidity)))
	assert.Len(t, sess.ID, 64)
}

func TestAuthenticate_ReturningUserKeepsFirstLoginAndExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	first, _, err := svc.Authenticate(ctx, user.Identity{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	clk.now = t0.Add(48 * time.Hour)
	second, _, err := svc.Authenticate(ctx, user.Identity{ID: "u1", Name: "Ada L."})
	require.NoError(t, err)

	assert.True(t, second.FirstLoginAt.Equal(first.FirstLoginAt))
	assert.True(t, second.ExpiresAt.Equal(first.ExpiresAt))
	assert.True(t, second.LastLoginAt.Equal(clk.now))
	assert.Equal(t, "Ada L.", second.Name)
}

func TestAuthenticate_BackfillsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newTestService(t)

	legacy := []byte(`{"id":"u1","email":"","name":"Old","firstLoginAt":"2023-01-01T00:00:00Z","lastLoginAt":"2023-01-01T00:00:00Z","expiresAt":"0001-01-01T00:00:00Z"}`)
	require.NoError(t, kv.Put(ctx, storage.UserKey("u1"), legacy, 0))

	profile, _, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)
	assert.True(t, profile.ExpiresAt.Equal(t0.Add(DefaultUserValidity)))
	assert.Equal(t, 2023, profile.FirstLoginAt.Year())
}

func TestAuthenticate_ExpiredUserRefused(t *testing.T) {
	ctx := context.Background()
	svc, kv, clk := newTestService(t)

	_, _, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)
	sessionsBefore, err := kv.Keys(ctx, storage.PrefixSession)
	require.NoError(t, err)

	clk.now = t0.Add(DefaultUserValidity + time.Minute)
	_, _, err = svc.Authenticate(ctx, user.Identity{ID: "u1"})
	assert.True(t, errors.Is(err, apperrors.ErrIdentityExpired))
	assert.Equal(t, apperrors.CodeIdentityExpired, apperrors.CodeOf(err))

	sessionsAfter, err := kv.Keys(ctx, storage.PrefixSession)
	require.NoError(t, err)
	assert.Len(t, sessionsAfter, len(sessionsBefore))

	profile, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, profile.LastLoginAt.Equal(t0))
}

func TestAuthenticate_RejectsInvalidIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Authenticate(context.Background(), user.Identity{ID: ""})
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestResolveSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, sess, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)

	got, profile, err := svc.ResolveSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "u1", profile.ID)
}

func TestResolveSession_ExplicitExpiryCheck(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	_, sess, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)

	// the store TTL runs on wall time, so only the timestamp check can fire here
	clk.now = t0.Add(DefaultSessionValidity)
	_, _, err = svc.ResolveSession(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	clk.now = t0
	_, _, err = svc.ResolveSession(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized), "expired session is dropped")
}

func TestResolveSession_Unknown(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, _, err := svc.ResolveSession(ctx, "not-a-session")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, _, err = svc.ResolveSession(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestResolveSession_OwnerExpiredOrDeleted(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, sess, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)

	_, err = svc.UpdateExpiry(ctx, "u1", user.UpdateExpiryInput{ExpiresAt: t0.Add(-time.Hour)})
	require.NoError(t, err)
	_, _, err = svc.ResolveSession(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperrors.ErrIdentityExpired))

	require.NoError(t, svc.DeleteUser(ctx, "u1"))
	_, _, err = svc.ResolveSession(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestDestroySession_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, sess, err := svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, svc.DestroySession(ctx, sess.ID))
	require.NoError(t, svc.DestroySession(ctx, sess.ID))
	require.NoError(t, svc.DestroySession(ctx, "garbage"))

	_, _, err = svc.ResolveSession(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestListUsers_SortedByLastLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	for _, step := range []struct {
		id  string
		off time.Duration
	}{
		{"b", 0},
		{"a", 0},
		{"c", time.Hour},
	} {
		clk.now = t0.Add(step.off)
		_, _, err := svc.Authenticate(ctx, user.Identity{ID: step.id})
		require.NoError(t, err)
	}

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "c", users[0].ID)
	assert.Equal(t, "a", users[1].ID)
	assert.Equal(t, "b", users[2].ID)
}

func TestUpdateExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	_, err := svc.UpdateExpiry(ctx, "ghost", user.UpdateExpiryInput{ExpiresAt: t0})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.UpdateExpiry(ctx, "ghost", user.UpdateExpiryInput{})
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))

	_, _, err = svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.NoError(t, err)

	clk.now = t0.Add(DefaultUserValidity + time.Hour)
	_, _, err = svc.Authenticate(ctx, user.Identity{ID: "u1"})
	require.True(t, errors.Is(err, apperrors.ErrIdentityExpired))

	extended := clk.now.Add(90 * 24 * time.Hour)
	profile, err := svc.UpdateExpiry(ctx, "u1", user.UpdateExpiryInput{
		ExpiresAt:    extended,
		CustomModels: &user.CustomModels{Text: "text-model-x"},
	})
	require.NoError(t, err)
	assert.True(t, profile.ExpiresAt.Equal(extended))
	assert.Equal(t, "text-model-x", profile.CustomModels.Text)

	_, _, err = svc.Authenticate(ctx, user.Identity{ID: "u1"})
	assert.NoError(t, err)
}

func TestDeleteUser_Missing(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.DeleteUser(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
