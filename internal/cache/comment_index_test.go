package cache

import (
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCommentIndexRoundTrip(t *testing.T) {
	ci := newCommentIndex()
	post := &Post{ID: uuid.New()}
	id := uuid.New()

	ci.insert(id, post, []int{0, 2, 1})

	got, path, ok := ci.get(id)
	require.True(t, ok)
	require.Same(t, post, got)
	require.Equal(t, []int{0, 2, 1}, path)

	// The returned path is a copy; callers cannot corrupt the index.
	path[0] = 99
	_, again, _ := ci.get(id)
	require.Equal(t, []int{0, 2, 1}, again)

	runtime.KeepAlive(post)
}

func TestCommentIndexPrunesDeadPosts(t *testing.T) {
	ci := newCommentIndex()
	id := uuid.New()

	post := &Post{ID: uuid.New()}
	ci.insert(id, post, []int{0})

	_, _, ok := ci.get(id)
	require.True(t, ok)

	runtime.KeepAlive(post)
	post = nil
	_ = post

	require.Eventually(t, func() bool {
		runtime.GC()
		_, _, ok := ci.get(id)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, ci.size())
}

func TestCommentIndexDeleteAllSubtrees(t *testing.T) {
	ci := newCommentIndex()
	post := &Post{ID: uuid.New()}

	child := &Comment{ID: uuid.New()}
	root := &Comment{ID: uuid.New(), Children: []*Comment{child}}
	other := &Comment{ID: uuid.New()}

	ci.insert(root.ID, post, []int{0})
	ci.insert(child.ID, post, []int{0, 0})
	ci.insert(other.ID, post, []int{1})

	ci.deleteAll([]*Comment{root})
	ci.wait()

	_, _, ok := ci.get(root.ID)
	require.False(t, ok)
	_, _, ok = ci.get(child.ID)
	require.False(t, ok)

	_, path, ok := ci.get(other.ID)
	require.True(t, ok)
	require.Equal(t, []int{1}, path)

	runtime.KeepAlive(post)
}
