// Package blob abstracts the content-addressed object store. The cache layer
// only reads metadata; uploads and preview generation happen elsewhere.
package blob

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Metadata describes a stored binary object.
type Metadata struct {
	Hash      string
	Size      int64
	MediaType string
	Subtype   string
	Added     time.Time
}

// Bucket is the read surface of the object store. GetObjects returns
// metadata in the order of the requested ids and fails if any id is missing;
// callers are expected to pass ids already confirmed by the relational store.
type Bucket interface {
	GetObject(ctx context.Context, id uuid.UUID) (Metadata, error)
	GetObjects(ctx context.Context, ids []uuid.UUID) ([]Metadata, error)
}
