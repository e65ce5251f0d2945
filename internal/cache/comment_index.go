package cache

import (
	"slices"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// commentRef locates a comment inside its post's tree: a weak handle to the
// owning post plus the child-index path from the root list down to the node.
// The post reference is weak so an index entry never keeps an evicted post
// alive; a dead reference is pruned lazily on lookup.
type commentRef struct {
	post weak.Pointer[Post]
	path []int
}

// commentIndex is the global comment id to (post, path) map, letting comment
// operations address a node directly instead of walking the tree from the
// root. Rebuilt entries overwrite stale ones whenever a post's comments are
// (re)loaded or a reply is inserted.
type commentIndex struct {
	mu sync.RWMutex
	m  map[uuid.UUID]commentRef

	// teardown tracks asynchronous bulk deregistration so tests can wait
	// for it.
	teardown sync.WaitGroup
}

func newCommentIndex() *commentIndex {
	return &commentIndex{m: make(map[uuid.UUID]commentRef)}
}

// get resolves a comment id to its live post and path. A dead post reference
// is removed and reported as a miss.
func (ci *commentIndex) get(id uuid.UUID) (*Post, []int, bool) {
	ci.mu.RLock()
	ref, ok := ci.m[id]
	ci.mu.RUnlock()

	if !ok {
		return nil, nil, false
	}

	post := ref.post.Value()
	if post == nil {
		ci.mu.Lock()
		if cur, ok := ci.m[id]; ok && cur.post == ref.post {
			delete(ci.m, id)
		}
		ci.mu.Unlock()
		return nil, nil, false
	}

	return post, slices.Clone(ref.path), true
}

// path returns the registered path for a comment known to be indexed, such
// as right after its post's tree was built.
func (ci *commentIndex) path(id uuid.UUID) ([]int, bool) {
	ci.mu.RLock()
	ref, ok := ci.m[id]
	ci.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return slices.Clone(ref.path), true
}

func (ci *commentIndex) insert(id uuid.UUID, post *Post, path []int) {
	ref := commentRef{post: weak.Make(post), path: slices.Clone(path)}

	ci.mu.Lock()
	ci.m[id] = ref
	ci.mu.Unlock()
}

// deleteAll deregisters the given subtrees asynchronously. Deletes return to
// the caller as soon as the in-memory tree is pruned; a stale index entry
// only costs a wasted lookup miss, never wrong data.
func (ci *commentIndex) deleteAll(comments []*Comment) {
	if len(comments) == 0 {
		return
	}

	ci.teardown.Add(1)
	go func() {
		defer ci.teardown.Done()

		ci.mu.Lock()
		defer ci.mu.Unlock()
		for _, comment := range comments {
			ci.deleteTree(comment)
		}
	}()
}

func (ci *commentIndex) deleteTree(comment *Comment) {
	delete(ci.m, comment.ID)
	for _, child := range comment.Children {
		ci.deleteTree(child)
	}
}

// wait blocks until pending asynchronous deregistration finishes.
func (ci *commentIndex) wait() {
	ci.teardown.Wait()
}

func (ci *commentIndex) size() int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return len(ci.m)
}
