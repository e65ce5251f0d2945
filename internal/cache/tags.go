package cache

import (
	"context"

	"github.com/google/uuid"

	"curio-backend/internal/domain"
	"curio-backend/internal/store"
)

// TagData is the mutable portion of a cached tag. The creator is a strong
// handle so the tag can render a preview without a user-cache round-trip.
type TagData struct {
	Profile   domain.Profile
	Creator   *User
	PostCount int
}

// Tag is a cached tag.
type Tag struct {
	ID      uuid.UUID
	mutable slot[TagData]
}

func newTag(ctx context.Context, c *Cache, row store.TagRow) *Tag {
	var creator *User
	if row.Creator != nil {
		// A failed creator lookup degrades to an anonymous tag.
		creator, _ = c.Users().Get(ctx, *row.Creator)
	}

	t := &Tag{ID: row.ID}
	t.mutable.init(TagData{
		Profile:   profileModel(row.Profile),
		Creator:   creator,
		PostCount: row.PostCount,
	})
	return t
}

// Model returns the full tag model, or nil once tombstoned.
func (t *Tag) Model() *domain.Tag {
	var model *domain.Tag
	t.mutable.view(func(d *TagData) {
		model = &domain.Tag{
			ID:        t.ID,
			Profile:   d.Profile,
			PostCount: d.PostCount,
		}
		if d.Creator != nil {
			model.Creator = d.Creator.Preview()
		}
	})
	return model
}

// Preview returns the compact tag representation, or nil once tombstoned.
func (t *Tag) Preview() *domain.TagPreview {
	var preview *domain.TagPreview
	t.mutable.view(func(d *TagData) {
		preview = &domain.TagPreview{
			ID:     t.ID,
			Name:   d.Profile.Name,
			Avatar: d.Profile.Avatar,
		}
	})
	return preview
}

// Update mutates the tag under the write lock. It reports false once
// tombstoned.
func (t *Tag) Update(f func(*TagData)) bool {
	return t.mutable.update(f)
}

// Deleted reports whether the tag is tombstoned.
func (t *Tag) Deleted() bool {
	return t.mutable.deleted()
}

func (t *Tag) creator() *User {
	var creator *User
	t.mutable.view(func(d *TagData) { creator = d.Creator })
	return creator
}

// Tags is the tag-cache façade.
type Tags struct {
	cache *Cache
}

// Get returns the cached tag, fetching from the store on miss. A nil result
// with a nil error means the tag does not exist.
func (t Tags) Get(ctx context.Context, id uuid.UUID) (*Tag, error) {
	return t.cache.tags.Get(ctx, id, func(ctx context.Context) (*Tag, error) {
		row, err := t.cache.store.ReadTag(ctx, id)
		if err != nil || row == nil {
			return nil, err
		}
		return newTag(ctx, t.cache, *row), nil
	})
}

// GetMultiple hydrates an id list, preserving order and skipping ids that do
// not exist.
func (t Tags) GetMultiple(ctx context.Context, ids []uuid.UUID) ([]*Tag, error) {
	return t.cache.tags.GetMultiple(ctx, ids, func(ctx context.Context, misses []uuid.UUID) ([]*Tag, error) {
		rows, err := t.cache.store.ReadTags(ctx, misses)
		if err != nil {
			return nil, err
		}
		tags := make([]*Tag, len(rows))
		for i, row := range rows {
			tags[i] = newTag(ctx, t.cache, row)
		}
		return tags, nil
	})
}

// Insert caches a freshly created tag and credits the creator's tag count.
func (t Tags) Insert(ctx context.Context, row store.TagRow) *Tag {
	tag := t.cache.tags.Insert(newTag(ctx, t.cache, row))

	if creator := tag.creator(); creator != nil {
		creator.Update(func(d *UserData) { d.TagCount++ })
	}

	return tag
}

// Remove tombstones the tag, debits the creator's tag count, and clears the
// identity-map slot.
func (t Tags) Remove(tag *Tag) {
	data, ok := tag.mutable.take()
	if ok && data.Creator != nil {
		data.Creator.Update(func(d *UserData) {
			if d.TagCount > 0 {
				d.TagCount--
			}
		})
	}

	t.cache.tags.Remove(tag.ID)
}
