package cache

import (
	"context"
	"time"

	"curio-backend/internal/auth"
	"curio-backend/internal/errors"
)

// Session is a cached login session: the token digest it is stored under, a
// strong hold on the owning user, and the expiry. The user hold means an
// authenticated request never pays a user-cache lookup.
type Session struct {
	Digest  auth.Digest
	User    *User
	Expires time.Time
}

// Valid reports whether the session can still authenticate: not expired and
// its user not tombstoned.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.Expires) && !s.User.Deleted()
}

// Sessions is the session-cache façade. Lookups are keyed by token digest;
// the raw token never reaches the cache.
type Sessions struct {
	cache *Cache
}

// Get authenticates a session token. An unknown, expired, or orphaned
// session yields ErrUnauthenticated; an invalidated session is also dropped
// from the cache so the next attempt consults the store.
func (s Sessions) Get(ctx context.Context, id auth.SessionID) (*Session, error) {
	digest := id.Digest()

	session, err := s.cache.sessions.Get(ctx, digest, func(ctx context.Context) (*Session, error) {
		row, err := s.cache.store.ReadUserSession(ctx, digest)
		if err != nil || row == nil {
			return nil, err
		}

		user, err := s.cache.Users().Get(ctx, row.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, nil
		}

		return &Session{Digest: digest, User: user, Expires: row.Expires}, nil
	})
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, errors.ErrUnauthenticated
	}

	if !session.Valid(time.Now()) {
		s.cache.sessions.Remove(digest)
		return nil, errors.ErrUnauthenticated
	}

	return session, nil
}

// Delete ends a session in the store and drops it from the cache.
func (s Sessions) Delete(ctx context.Context, id auth.SessionID) error {
	digest := id.Digest()

	if err := s.cache.store.DeleteUserSession(ctx, digest); err != nil {
		return err
	}

	s.cache.sessions.Remove(digest)
	return nil
}

// Insert caches a freshly created session.
func (s Sessions) Insert(id auth.SessionID, user *User, expires time.Time) *Session {
	return s.cache.sessions.Insert(&Session{
		Digest:  id.Digest(),
		User:    user,
		Expires: expires,
	})
}
