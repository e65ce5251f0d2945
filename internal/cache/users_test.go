package cache

import (
	"context"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"curio-backend/internal/errors"
)

func TestUsersGetCachesHandle(t *testing.T) {
	fs := newFakeStore()
	row := userRow("alice")
	fs.users[row.ID] = row

	c := newTestCache(fs)
	ctx := context.Background()

	first, err := c.Users().Get(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := c.Users().Get(ctx, row.ID)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, fs.readCount("user", row.ID))

	model := first.Model()
	require.Equal(t, "alice@example.com", model.Email)
	require.Equal(t, "alice", model.Profile.Name)

	runtime.KeepAlive(first)
}

func TestUsersGetMissingIsNegativeCached(t *testing.T) {
	fs := newFakeStore()
	c := newTestCache(fs)
	ctx := context.Background()
	id := uuid.New()

	for i := 0; i < 2; i++ {
		user, err := c.Users().Get(ctx, id)
		require.NoError(t, err)
		require.Nil(t, user)
	}
	require.Equal(t, 1, fs.readCount("user", id))
}

func TestUsersRemoveTombstones(t *testing.T) {
	fs := newFakeStore()
	row := userRow("bob")
	fs.users[row.ID] = row

	c := newTestCache(fs)
	ctx := context.Background()

	user, err := c.Users().Get(ctx, row.ID)
	require.NoError(t, err)

	c.Users().Remove(user)
	require.True(t, user.Deleted())
	require.Nil(t, user.Model())
	require.Nil(t, user.Preview())
	require.False(t, user.Update(func(*UserData) { t.Fatal("updated a tombstone") }))

	// The identity-map slot is gone, so the next lookup consults the
	// store and yields a fresh handle.
	fresh, err := c.Users().Get(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.NotSame(t, user, fresh)
	require.Equal(t, 2, fs.readCount("user", row.ID))

	runtime.KeepAlive(fresh)
}

func TestUserRequireAdmin(t *testing.T) {
	fs := newFakeStore()

	admin := userRow("root")
	admin.Admin = true
	fs.users[admin.ID] = admin

	plain := userRow("carol")
	fs.users[plain.ID] = plain

	c := newTestCache(fs)
	ctx := context.Background()

	a, err := c.Users().Get(ctx, admin.ID)
	require.NoError(t, err)
	require.NoError(t, a.RequireAdmin())

	p, err := c.Users().Get(ctx, plain.ID)
	require.NoError(t, err)
	require.ErrorIs(t, p.RequireAdmin(), errors.ErrUnauthorized)

	// Deletion strips privileges.
	a.Delete()
	require.ErrorIs(t, a.RequireAdmin(), errors.ErrUnauthorized)
}

func TestUsersGetMultiplePreservesOrder(t *testing.T) {
	fs := newFakeStore()
	first := userRow("dave")
	second := userRow("erin")
	fs.users[first.ID] = first
	fs.users[second.ID] = second

	c := newTestCache(fs)
	ctx := context.Background()

	missing := uuid.New()
	users, err := c.Users().GetMultiple(ctx, []uuid.UUID{second.ID, missing, first.ID})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, second.ID, users[0].ID)
	require.Equal(t, first.ID, users[1].ID)

	runtime.KeepAlive(users)
}
