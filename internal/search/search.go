// Package search declares the search-index collaborator. Queries resolve to
// ordered id lists; callers hydrate them through the cache layer's
// GetMultiple operations, so the cache itself never talks to the index.
package search

import (
	"context"

	"github.com/google/uuid"
)

// Query is a text search with pagination over one entity kind.
type Query struct {
	Text string
	From int
	Size int
}

// Index resolves queries to ordered entity ids. Implementations index
// writes elsewhere; the read side is all the backend needs.
type Index interface {
	SearchUsers(ctx context.Context, q Query) ([]uuid.UUID, error)
	SearchTags(ctx context.Context, q Query) ([]uuid.UUID, error)
	SearchPosts(ctx context.Context, q Query) ([]uuid.UUID, error)
}
