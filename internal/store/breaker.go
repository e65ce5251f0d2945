package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"curio-backend/internal/auth"
)

// Breaker decorates a Store with a circuit breaker so a struggling table
// fails fast instead of stacking up timed-out reads. Breaker errors surface
// to callers like any other store failure; the cache never converts them
// into negative entries.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner. The circuit opens after maxFailures consecutive
// failures and probes again after timeout.
func NewBreaker(inner Store, maxFailures uint32, timeout time.Duration, log *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "store",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("store circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

func call[T any](b *Breaker, f func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return f()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (b *Breaker) ReadUser(ctx context.Context, id uuid.UUID) (*UserRow, error) {
	return call(b, func() (*UserRow, error) { return b.inner.ReadUser(ctx, id) })
}

func (b *Breaker) ReadUsers(ctx context.Context, ids []uuid.UUID) ([]UserRow, error) {
	return call(b, func() ([]UserRow, error) { return b.inner.ReadUsers(ctx, ids) })
}

func (b *Breaker) ReadTag(ctx context.Context, id uuid.UUID) (*TagRow, error) {
	return call(b, func() (*TagRow, error) { return b.inner.ReadTag(ctx, id) })
}

func (b *Breaker) ReadTags(ctx context.Context, ids []uuid.UUID) ([]TagRow, error) {
	return call(b, func() ([]TagRow, error) { return b.inner.ReadTags(ctx, ids) })
}

func (b *Breaker) ReadPost(ctx context.Context, id uuid.UUID) (*PostRow, error) {
	return call(b, func() (*PostRow, error) { return b.inner.ReadPost(ctx, id) })
}

func (b *Breaker) ReadPosts(ctx context.Context, ids []uuid.UUID) ([]PostRow, error) {
	return call(b, func() ([]PostRow, error) { return b.inner.ReadPosts(ctx, ids) })
}

func (b *Breaker) ReadObject(ctx context.Context, id uuid.UUID) (*ObjectRow, error) {
	return call(b, func() (*ObjectRow, error) { return b.inner.ReadObject(ctx, id) })
}

func (b *Breaker) ReadObjects(ctx context.Context, ids []uuid.UUID) ([]ObjectRow, error) {
	return call(b, func() ([]ObjectRow, error) { return b.inner.ReadObjects(ctx, ids) })
}

func (b *Breaker) ReadComments(ctx context.Context, postID uuid.UUID) ([]CommentRow, error) {
	return call(b, func() ([]CommentRow, error) { return b.inner.ReadComments(ctx, postID) })
}

func (b *Breaker) ReadCommentPost(ctx context.Context, commentID uuid.UUID) (uuid.UUID, bool, error) {
	type located struct {
		post  uuid.UUID
		found bool
	}
	loc, err := call(b, func() (located, error) {
		post, found, err := b.inner.ReadCommentPost(ctx, commentID)
		return located{post: post, found: found}, err
	})
	return loc.post, loc.found, err
}

func (b *Breaker) ReadUserSession(ctx context.Context, digest auth.Digest) (*SessionRow, error) {
	return call(b, func() (*SessionRow, error) { return b.inner.ReadUserSession(ctx, digest) })
}

func (b *Breaker) DeleteUserSession(ctx context.Context, digest auth.Digest) error {
	_, err := call(b, func() (struct{}, error) {
		return struct{}{}, b.inner.DeleteUserSession(ctx, digest)
	})
	return err
}
