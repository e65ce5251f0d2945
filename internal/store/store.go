// Package store defines the relational-store collaborator consumed by the
// cache layer on miss. Implementations return rows; the cache owns turning
// rows into live entities. Row reads for multiple ids must preserve the
// order of the requested ids, skipping ids that do not exist.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"curio-backend/internal/auth"
	"curio-backend/internal/domain"
)

// ProfileRow is the stored descriptive block for users and tags.
type ProfileRow struct {
	Name        string
	Aliases     []string
	Description string
	Avatar      *uuid.UUID
	Banner      *uuid.UUID
	Created     time.Time
}

// UserRow is a stored user account.
type UserRow struct {
	ID           uuid.UUID
	Email        string
	Admin        bool
	Profile      ProfileRow
	PostCount    int
	CommentCount int
	TagCount     int
}

// TagRow is a stored tag.
type TagRow struct {
	ID        uuid.UUID
	Profile   ProfileRow
	Creator   *uuid.UUID
	PostCount int
}

// PostRow is a stored post. Object, related-post, and tag membership are
// id lists; the cache resolves them through the respective caches.
type PostRow struct {
	ID           uuid.UUID
	Poster       *uuid.UUID
	Title        string
	Description  string
	Visibility   domain.Visibility
	Created      time.Time
	Modified     time.Time
	Objects      []uuid.UUID
	Posts        []uuid.UUID
	Tags         []uuid.UUID
	CommentCount int
}

// ObjectRow is the stored side of an object; binary metadata lives in the
// blob store.
type ObjectRow struct {
	ID        uuid.UUID
	PreviewID *uuid.UUID
	Posts     []uuid.UUID
}

// CommentRow is a stored comment. ReadComments returns rows sorted by level
// then parent id, so the tree builder can group contiguous runs in one pass.
type CommentRow struct {
	ID       uuid.UUID
	PostID   uuid.UUID
	ParentID *uuid.UUID
	UserID   *uuid.UUID
	Level    int
	Content  string
	Created  time.Time
}

// SessionRow is a stored login session keyed by token digest.
type SessionRow struct {
	Digest  auth.Digest
	UserID  uuid.UUID
	Expires time.Time
}

// Store is the read surface the cache layer depends on. A nil row with a nil
// error means the entity is confirmed absent and may be negative-cached; any
// error is passed through to the caller unchanged.
type Store interface {
	ReadUser(ctx context.Context, id uuid.UUID) (*UserRow, error)
	ReadUsers(ctx context.Context, ids []uuid.UUID) ([]UserRow, error)

	ReadTag(ctx context.Context, id uuid.UUID) (*TagRow, error)
	ReadTags(ctx context.Context, ids []uuid.UUID) ([]TagRow, error)

	ReadPost(ctx context.Context, id uuid.UUID) (*PostRow, error)
	ReadPosts(ctx context.Context, ids []uuid.UUID) ([]PostRow, error)

	ReadObject(ctx context.Context, id uuid.UUID) (*ObjectRow, error)
	ReadObjects(ctx context.Context, ids []uuid.UUID) ([]ObjectRow, error)

	// ReadComments returns every comment of a post, sorted by level then
	// parent id.
	ReadComments(ctx context.Context, postID uuid.UUID) ([]CommentRow, error)
	// ReadCommentPost resolves the post a comment belongs to.
	ReadCommentPost(ctx context.Context, commentID uuid.UUID) (uuid.UUID, bool, error)

	ReadUserSession(ctx context.Context, digest auth.Digest) (*SessionRow, error)
	DeleteUserSession(ctx context.Context, digest auth.Digest) error
}
