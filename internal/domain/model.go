// Package domain defines the externally visible shapes of repository
// entities. These are the models handed to callers of the cache layer;
// they carry denormalized counters and resolved previews instead of raw ids.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a post.
type Visibility string

const (
	VisibilityDraft  Visibility = "draft"
	VisibilityPublic Visibility = "public"
)

// Profile is the shared descriptive block for users and tags.
type Profile struct {
	Name        string
	Aliases     []string
	Description string
	Avatar      *uuid.UUID
	Banner      *uuid.UUID
	Created     time.Time
}

// User is a full user account model.
type User struct {
	ID           uuid.UUID
	Email        string
	Admin        bool
	Profile      Profile
	PostCount    int
	CommentCount int
	TagCount     int
}

// UserPreview is the compact user representation embedded in other models.
type UserPreview struct {
	ID     uuid.UUID
	Name   string
	Avatar *uuid.UUID
}

// Tag is a full tag model.
type Tag struct {
	ID        uuid.UUID
	Profile   Profile
	Creator   *UserPreview
	PostCount int
}

// TagPreview is the compact tag representation embedded in posts.
type TagPreview struct {
	ID     uuid.UUID
	Name   string
	Avatar *uuid.UUID
}

// Post is a full post model.
type Post struct {
	ID           uuid.UUID
	Poster       *UserPreview
	Title        string
	Description  string
	Visibility   Visibility
	Created      time.Time
	Modified     time.Time
	Objects      []ObjectPreview
	Posts        []PostPreview
	Tags         []TagPreview
	CommentCount int
}

// PostPreview is the compact post representation used in listings and
// back-references.
type PostPreview struct {
	ID           uuid.UUID
	Poster       *UserPreview
	Title        string
	Preview      *ObjectPreview
	CommentCount int
	ObjectCount  int
	Created      time.Time
}

// Object is a full stored-object model, including the posts that embed it.
type Object struct {
	ID        uuid.UUID
	Hash      string
	Size      int64
	MediaType string
	Subtype   string
	Added     time.Time
	PreviewID *uuid.UUID
	Posts     []PostPreview
}

// ObjectPreview is the compact object representation embedded in posts.
type ObjectPreview struct {
	ID        uuid.UUID
	PreviewID *uuid.UUID
	MediaType string
	Subtype   string
}

// Comment is a full comment model addressed by id.
type Comment struct {
	ID       uuid.UUID
	User     *UserPreview
	PostID   uuid.UUID
	ParentID *uuid.UUID
	Level    int
	Content  string
	Created  time.Time
}

// CommentData is the flattened comment representation used in thread
// listings.
type CommentData struct {
	ID      uuid.UUID
	User    *UserPreview
	Content string
	Level   int
	Created time.Time
}
