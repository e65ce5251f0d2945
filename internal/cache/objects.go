package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"curio-backend/internal/blob"
	"curio-backend/internal/domain"
	"curio-backend/internal/store"
)

// Object is a cached stored object. Its metadata never changes after upload;
// only the post back-reference list mutates, under its own lock. Objects are
// never tombstoned: deleting a post just deregisters it here.
type Object struct {
	ID        uuid.UUID
	Hash      string
	Size      int64
	MediaType string
	Subtype   string
	Added     time.Time
	PreviewID *uuid.UUID

	mu    sync.RWMutex
	posts []uuid.UUID
}

func newObject(row store.ObjectRow, meta blob.Metadata) *Object {
	return &Object{
		ID:        row.ID,
		Hash:      meta.Hash,
		Size:      meta.Size,
		MediaType: meta.MediaType,
		Subtype:   meta.Subtype,
		Added:     meta.Added,
		PreviewID: row.PreviewID,
		posts:     row.Posts,
	}
}

// Model returns the full object model, resolving post previews visible to
// the viewer.
func (o *Object) Model(ctx context.Context, c *Cache, viewer *User) (domain.Object, error) {
	o.mu.RLock()
	posts := slices.Clone(o.posts)
	o.mu.RUnlock()

	previews, err := c.Posts().Previews(ctx, posts, viewer)
	if err != nil {
		return domain.Object{}, err
	}

	return domain.Object{
		ID:        o.ID,
		Hash:      o.Hash,
		Size:      o.Size,
		MediaType: o.MediaType,
		Subtype:   o.Subtype,
		Added:     o.Added,
		PreviewID: o.PreviewID,
		Posts:     previews,
	}, nil
}

// Preview returns the compact object representation.
func (o *Object) Preview() domain.ObjectPreview {
	return domain.ObjectPreview{
		ID:        o.ID,
		PreviewID: o.PreviewID,
		MediaType: o.MediaType,
		Subtype:   o.Subtype,
	}
}

// AddPost registers a post in the back-reference list. Newest posts go
// first; re-adding is a no-op.
func (o *Object) AddPost(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !slices.Contains(o.posts, id) {
		o.posts = slices.Insert(o.posts, 0, id)
	}
}

// DeletePost deregisters a post from the back-reference list.
func (o *Object) DeletePost(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.posts = slices.DeleteFunc(o.posts, func(post uuid.UUID) bool {
		return post == id
	})
}

// Objects is the object-cache façade. Misses join the relational row with
// blob-store metadata.
type Objects struct {
	cache *Cache
}

// Get returns the cached object, fetching row and metadata on miss. A nil
// result with a nil error means the object does not exist.
func (o Objects) Get(ctx context.Context, id uuid.UUID) (*Object, error) {
	return o.cache.objects.Get(ctx, id, func(ctx context.Context) (*Object, error) {
		row, err := o.cache.store.ReadObject(ctx, id)
		if err != nil || row == nil {
			return nil, err
		}

		meta, err := o.cache.bucket.GetObject(ctx, id)
		if err != nil {
			return nil, err
		}

		return newObject(*row, meta), nil
	})
}

// GetMultiple hydrates an id list, preserving order and skipping ids that do
// not exist.
func (o Objects) GetMultiple(ctx context.Context, ids []uuid.UUID) ([]*Object, error) {
	return o.cache.objects.GetMultiple(ctx, ids, func(ctx context.Context, misses []uuid.UUID) ([]*Object, error) {
		rows, err := o.cache.store.ReadObjects(ctx, misses)
		if err != nil {
			return nil, err
		}

		present := make([]uuid.UUID, len(rows))
		for i, row := range rows {
			present[i] = row.ID
		}

		metas, err := o.cache.bucket.GetObjects(ctx, present)
		if err != nil {
			return nil, err
		}

		objects := make([]*Object, len(rows))
		for i, row := range rows {
			objects[i] = newObject(row, metas[i])
		}
		return objects, nil
	})
}
