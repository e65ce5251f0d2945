package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// objectStatConcurrency bounds parallel stat calls in GetObjects.
const objectStatConcurrency = 8

// MinioBucket reads object metadata from a MinIO (or S3-compatible) bucket.
type MinioBucket struct {
	client *minio.Client
	bucket string
}

// NewMinioBucket connects to the object store.
func NewMinioBucket(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioBucket, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store: %w", err)
	}
	return &MinioBucket{client: client, bucket: bucket}, nil
}

func (b *MinioBucket) GetObject(ctx context.Context, id uuid.UUID) (Metadata, error) {
	info, err := b.client.StatObject(ctx, b.bucket, id.String(), minio.StatObjectOptions{})
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to stat object %s: %w", id, err)
	}

	mediaType, subtype, _ := strings.Cut(info.ContentType, "/")

	return Metadata{
		Hash:      strings.Trim(info.ETag, `"`),
		Size:      info.Size,
		MediaType: mediaType,
		Subtype:   subtype,
		Added:     info.LastModified,
	}, nil
}

func (b *MinioBucket) GetObjects(ctx context.Context, ids []uuid.UUID) ([]Metadata, error) {
	result := make([]Metadata, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(objectStatConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			meta, err := b.GetObject(ctx, id)
			if err != nil {
				return err
			}
			result[i] = meta
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
