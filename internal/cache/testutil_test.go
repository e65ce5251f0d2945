package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"curio-backend/internal/auth"
	"curio-backend/internal/blob"
	"curio-backend/internal/domain"
	"curio-backend/internal/store"
)

// fakeStore serves rows from memory and counts reads per entity so tests can
// assert how often the cache went to the store.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]store.UserRow
	tags     map[uuid.UUID]store.TagRow
	posts    map[uuid.UUID]store.PostRow
	objects  map[uuid.UUID]store.ObjectRow
	comments map[uuid.UUID][]store.CommentRow
	sessions map[auth.Digest]store.SessionRow
	reads    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]store.UserRow),
		tags:     make(map[uuid.UUID]store.TagRow),
		posts:    make(map[uuid.UUID]store.PostRow),
		objects:  make(map[uuid.UUID]store.ObjectRow),
		comments: make(map[uuid.UUID][]store.CommentRow),
		sessions: make(map[auth.Digest]store.SessionRow),
		reads:    make(map[string]int),
	}
}

func (f *fakeStore) count(kind string, id fmt.Stringer) {
	f.reads[kind+":"+id.String()]++
}

func (f *fakeStore) readCount(kind string, id fmt.Stringer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[kind+":"+id.String()]
}

// putComments stores a post's comments sorted by level then parent id, the
// order the store contract promises.
func (f *fakeStore) putComments(postID uuid.UUID, rows []store.CommentRow) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted := make([]store.CommentRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Level != sorted[j].Level {
			return sorted[i].Level < sorted[j].Level
		}
		return parentString(sorted[i].ParentID) < parentString(sorted[j].ParentID)
	})
	f.comments[postID] = sorted
}

func parentString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (f *fakeStore) ReadUser(_ context.Context, id uuid.UUID) (*store.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("user", id)

	if row, ok := f.users[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) ReadUsers(_ context.Context, ids []uuid.UUID) ([]store.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.UserRow
	for _, id := range ids {
		f.count("user", id)
		if row, ok := f.users[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) ReadTag(_ context.Context, id uuid.UUID) (*store.TagRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("tag", id)

	if row, ok := f.tags[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) ReadTags(_ context.Context, ids []uuid.UUID) ([]store.TagRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.TagRow
	for _, id := range ids {
		f.count("tag", id)
		if row, ok := f.tags[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) ReadPost(_ context.Context, id uuid.UUID) (*store.PostRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("post", id)

	if row, ok := f.posts[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) ReadPosts(_ context.Context, ids []uuid.UUID) ([]store.PostRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.PostRow
	for _, id := range ids {
		f.count("post", id)
		if row, ok := f.posts[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) ReadObject(_ context.Context, id uuid.UUID) (*store.ObjectRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("object", id)

	if row, ok := f.objects[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) ReadObjects(_ context.Context, ids []uuid.UUID) ([]store.ObjectRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.ObjectRow
	for _, id := range ids {
		f.count("object", id)
		if row, ok := f.objects[id]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) ReadComments(_ context.Context, postID uuid.UUID) ([]store.CommentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("comments", postID)
	return f.comments[postID], nil
}

func (f *fakeStore) ReadCommentPost(_ context.Context, commentID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for postID, rows := range f.comments {
		for _, row := range rows {
			if row.ID == commentID {
				return postID, true, nil
			}
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeStore) ReadUserSession(_ context.Context, digest auth.Digest) (*store.SessionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("session", digest)

	if row, ok := f.sessions[digest]; ok {
		return &row, nil
	}
	return nil, nil
}

func (f *fakeStore) DeleteUserSession(_ context.Context, digest auth.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, digest)
	return nil
}

// fakeBucket fabricates metadata for any id.
type fakeBucket struct{}

func (fakeBucket) GetObject(_ context.Context, id uuid.UUID) (blob.Metadata, error) {
	return blob.Metadata{
		Hash:      "hash-" + id.String(),
		Size:      1024,
		MediaType: "image",
		Subtype:   "png",
	}, nil
}

func (b fakeBucket) GetObjects(ctx context.Context, ids []uuid.UUID) ([]blob.Metadata, error) {
	metas := make([]blob.Metadata, len(ids))
	for i, id := range ids {
		metas[i], _ = b.GetObject(ctx, id)
	}
	return metas, nil
}

func newTestCache(fs *fakeStore, opts ...Option) *Cache {
	return New(fs, fakeBucket{}, Config{}, opts...)
}

func userRow(name string) store.UserRow {
	return store.UserRow{
		ID:      uuid.New(),
		Email:   name + "@example.com",
		Profile: store.ProfileRow{Name: name, Created: time.Now()},
	}
}

func tagRow(name string, creator *uuid.UUID) store.TagRow {
	return store.TagRow{
		ID:      uuid.New(),
		Profile: store.ProfileRow{Name: name, Created: time.Now()},
		Creator: creator,
	}
}

func postRow(poster *uuid.UUID, visibility domain.Visibility) store.PostRow {
	now := time.Now()
	return store.PostRow{
		ID:         uuid.New(),
		Poster:     poster,
		Title:      "a post",
		Visibility: visibility,
		Created:    now,
		Modified:   now,
	}
}

func objectRow() store.ObjectRow {
	return store.ObjectRow{ID: uuid.New()}
}

func commentRow(post uuid.UUID, parent *uuid.UUID, user *uuid.UUID, level int, content string) store.CommentRow {
	return store.CommentRow{
		ID:       uuid.New(),
		PostID:   post,
		ParentID: parent,
		UserID:   user,
		Level:    level,
		Content:  content,
		Created:  time.Now(),
	}
}
