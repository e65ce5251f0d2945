package cache

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagsInsertCreditsCreator(t *testing.T) {
	fs := newFakeStore()
	creator := userRow("frank")
	fs.users[creator.ID] = creator

	c := newTestCache(fs)
	ctx := context.Background()

	user, err := c.Users().Get(ctx, creator.ID)
	require.NoError(t, err)
	require.Equal(t, 0, user.Model().TagCount)

	tag := c.Tags().Insert(ctx, tagRow("landscape", &creator.ID))
	require.Equal(t, 1, user.Model().TagCount)

	model := tag.Model()
	require.Equal(t, "landscape", model.Profile.Name)
	require.NotNil(t, model.Creator)
	require.Equal(t, creator.ID, model.Creator.ID)

	runtime.KeepAlive(tag)
	runtime.KeepAlive(user)
}

func TestTagsRemoveDebitsCreator(t *testing.T) {
	fs := newFakeStore()
	creator := userRow("grace")
	fs.users[creator.ID] = creator

	c := newTestCache(fs)
	ctx := context.Background()

	user, err := c.Users().Get(ctx, creator.ID)
	require.NoError(t, err)

	tag := c.Tags().Insert(ctx, tagRow("portrait", &creator.ID))
	require.Equal(t, 1, user.Model().TagCount)

	c.Tags().Remove(tag)
	require.True(t, tag.Deleted())
	require.Nil(t, tag.Model())
	require.Equal(t, 0, user.Model().TagCount)

	// Removing twice neither double-debits nor underflows.
	c.Tags().Remove(tag)
	require.Equal(t, 0, user.Model().TagCount)

	runtime.KeepAlive(user)
}

func TestTagAnonymousWhenCreatorMissing(t *testing.T) {
	fs := newFakeStore()
	row := tagRow("orphan", nil)
	fs.tags[row.ID] = row

	c := newTestCache(fs)
	ctx := context.Background()

	tag, err := c.Tags().Get(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, tag)
	require.Nil(t, tag.Model().Creator)

	runtime.KeepAlive(tag)
}

func TestTagsGetSharesCreatorHandle(t *testing.T) {
	fs := newFakeStore()
	creator := userRow("heidi")
	fs.users[creator.ID] = creator
	row := tagRow("macro", &creator.ID)
	fs.tags[row.ID] = row

	c := newTestCache(fs)
	ctx := context.Background()

	tag, err := c.Tags().Get(ctx, row.ID)
	require.NoError(t, err)

	user, err := c.Users().Get(ctx, creator.ID)
	require.NoError(t, err)
	require.Same(t, user, tag.creator())
	require.Equal(t, 1, fs.readCount("user", creator.ID))

	runtime.KeepAlive(tag)
	runtime.KeepAlive(user)
}
