package cache

import (
	"context"

	"github.com/google/uuid"

	"curio-backend/internal/domain"
	"curio-backend/internal/errors"
	"curio-backend/internal/store"
)

// UserData is the mutable portion of a cached user.
type UserData struct {
	Email        string
	Admin        bool
	Profile      domain.Profile
	PostCount    int
	CommentCount int
	TagCount     int
}

// User is a cached user account. The id is immutable; everything else lives
// in the mutable slot and disappears on tombstone.
type User struct {
	ID      uuid.UUID
	mutable slot[UserData]
}

func newUser(row store.UserRow) *User {
	u := &User{ID: row.ID}
	u.mutable.init(UserData{
		Email:        row.Email,
		Admin:        row.Admin,
		Profile:      profileModel(row.Profile),
		PostCount:    row.PostCount,
		CommentCount: row.CommentCount,
		TagCount:     row.TagCount,
	})
	return u
}

// Model returns the full user model, or nil once tombstoned.
func (u *User) Model() *domain.User {
	var model *domain.User
	u.mutable.view(func(d *UserData) {
		model = &domain.User{
			ID:           u.ID,
			Email:        d.Email,
			Admin:        d.Admin,
			Profile:      d.Profile,
			PostCount:    d.PostCount,
			CommentCount: d.CommentCount,
			TagCount:     d.TagCount,
		}
	})
	return model
}

// Preview returns the compact user representation, or nil once tombstoned.
func (u *User) Preview() *domain.UserPreview {
	var preview *domain.UserPreview
	u.mutable.view(func(d *UserData) {
		preview = &domain.UserPreview{
			ID:     u.ID,
			Name:   d.Profile.Name,
			Avatar: d.Profile.Avatar,
		}
	})
	return preview
}

// Update mutates the user under the write lock. It reports false once
// tombstoned.
func (u *User) Update(f func(*UserData)) bool {
	return u.mutable.update(f)
}

// Delete tombstones the user in place. Holders of the handle observe the
// deletion; the identity-map slot is cleared separately by Users.Remove.
func (u *User) Delete() {
	u.mutable.take()
}

// Deleted reports whether the user is tombstoned.
func (u *User) Deleted() bool {
	return u.mutable.deleted()
}

// IsAdmin reports the admin flag; a tombstoned user has no privileges.
func (u *User) IsAdmin() bool {
	admin := false
	u.mutable.view(func(d *UserData) { admin = d.Admin })
	return admin
}

// RequireAdmin returns an authorization failure unless the user is an admin.
func (u *User) RequireAdmin() error {
	if u.IsAdmin() {
		return nil
	}
	return errors.ErrUnauthorized
}

func profileModel(row store.ProfileRow) domain.Profile {
	return domain.Profile{
		Name:        row.Name,
		Aliases:     row.Aliases,
		Description: row.Description,
		Avatar:      row.Avatar,
		Banner:      row.Banner,
		Created:     row.Created,
	}
}

// Users is the user-cache façade.
type Users struct {
	cache *Cache
}

// Get returns the cached user, fetching from the store on miss. A nil result
// with a nil error means the user does not exist.
func (u Users) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return u.cache.users.Get(ctx, id, func(ctx context.Context) (*User, error) {
		row, err := u.cache.store.ReadUser(ctx, id)
		if err != nil || row == nil {
			return nil, err
		}
		return newUser(*row), nil
	})
}

// GetMultiple hydrates an id list, preserving order and skipping ids that do
// not exist.
func (u Users) GetMultiple(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	return u.cache.users.GetMultiple(ctx, ids, func(ctx context.Context, misses []uuid.UUID) ([]*User, error) {
		rows, err := u.cache.store.ReadUsers(ctx, misses)
		if err != nil {
			return nil, err
		}
		users := make([]*User, len(rows))
		for i, row := range rows {
			users[i] = newUser(row)
		}
		return users, nil
	})
}

// Insert caches a freshly created user.
func (u Users) Insert(row store.UserRow) *User {
	return u.cache.users.Insert(newUser(row))
}

// Remove tombstones the user and clears its identity-map slot so the next
// lookup consults the store.
func (u Users) Remove(user *User) {
	user.Delete()
	u.cache.users.Remove(user.ID)
}
