// Package cache is the in-process entity cache between the application logic
// and the relational store. Each domain gets a capacity-bounded identity
// cache of weak handles; entities are mutable, shared by reference, and keep
// their denormalized counters and cross-entity back-references consistent
// without re-querying the store on every access.
package cache

import (
	"curio-backend/internal/auth"
	"curio-backend/internal/blob"
	"curio-backend/internal/store"

	"github.com/google/uuid"
)

// DefaultCapacity applies to any domain without an explicit override.
const DefaultCapacity = 10_000

// Config holds per-domain capacities. Zero values fall back to Default, and
// a zero Default falls back to DefaultCapacity.
type Config struct {
	Default  int
	Objects  int
	Posts    int
	Sessions int
	Tags     int
	Users    int
}

func (c Config) capacity(n int) int {
	if n > 0 {
		return n
	}
	if c.Default > 0 {
		return c.Default
	}
	return DefaultCapacity
}

// Cache bundles the per-domain identity caches with their shared
// collaborators. All fields are immutable after construction; concurrent use
// from any number of goroutines is the expected mode.
type Cache struct {
	store  store.Store
	bucket blob.Bucket

	comments *commentIndex
	objects  *Identity[uuid.UUID, Object]
	posts    *Identity[uuid.UUID, Post]
	sessions *Identity[auth.Digest, Session]
	tags     *Identity[uuid.UUID, Tag]
	users    *Identity[uuid.UUID, User]
}

// New builds the cache layer over its collaborators.
func New(st store.Store, bucket blob.Bucket, conf Config, opts ...Option) *Cache {
	return &Cache{
		store:    st,
		bucket:   bucket,
		comments: newCommentIndex(),
		objects: NewIdentity("object", conf.capacity(conf.Objects),
			func(o *Object) uuid.UUID { return o.ID }, opts...),
		posts: NewIdentity("post", conf.capacity(conf.Posts),
			func(p *Post) uuid.UUID { return p.ID }, opts...),
		sessions: NewIdentity("session", conf.capacity(conf.Sessions),
			func(s *Session) auth.Digest { return s.Digest }, opts...),
		tags: NewIdentity("tag", conf.capacity(conf.Tags),
			func(t *Tag) uuid.UUID { return t.ID }, opts...),
		users: NewIdentity("user", conf.capacity(conf.Users),
			func(u *User) uuid.UUID { return u.ID }, opts...),
	}
}

func (c *Cache) Comments() Comments { return Comments{cache: c} }
func (c *Cache) Objects() Objects   { return Objects{cache: c} }
func (c *Cache) Posts() Posts       { return Posts{cache: c} }
func (c *Cache) Sessions() Sessions { return Sessions{cache: c} }
func (c *Cache) Tags() Tags         { return Tags{cache: c} }
func (c *Cache) Users() Users       { return Users{cache: c} }

// Flush drains every domain's buffered events into its eviction policy and
// waits for pending comment-index teardown. Called at shutdown and wherever
// policy state must be current.
func (c *Cache) Flush() {
	c.objects.Flush()
	c.posts.Flush()
	c.sessions.Flush()
	c.tags.Flush()
	c.users.Flush()
	c.comments.wait()
}
