// Package app wires the application's dependencies together.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"curio-backend/internal/blob"
	"curio-backend/internal/cache"
	"curio-backend/internal/config"
	"curio-backend/internal/store"
	"curio-backend/internal/store/dynamo"
)

// Container holds the application's long-lived dependencies. Everything is
// immutable after construction.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Store    store.Store
	Bucket   blob.Bucket
	Cache    *cache.Cache
}

// NewContainer builds the dependency graph from configuration.
func NewContainer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	registry := prometheus.NewRegistry()

	client, err := dynamo.NewClient(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	var st store.Store = dynamo.New(client, cfg.Database.TableName, cfg.Database.IndexName)
	st = store.NewBreaker(st, cfg.Database.BreakerMaxFailures, cfg.Database.BreakerTimeout, log)

	bucket, err := blob.NewMinioBucket(
		cfg.Bucket.Endpoint,
		cfg.Bucket.AccessKey,
		cfg.Bucket.SecretKey,
		cfg.Bucket.Name,
		cfg.Bucket.UseSSL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	entityCache := cache.New(st, bucket, cache.Config{
		Default:  cfg.Cache.Default,
		Objects:  cfg.Cache.Objects,
		Posts:    cfg.Cache.Posts,
		Sessions: cfg.Cache.Sessions,
		Tags:     cfg.Cache.Tags,
		Users:    cfg.Cache.Users,
	},
		cache.WithLogger(log),
		cache.WithMetrics(cache.NewMetrics(registry)),
	)

	return &Container{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Store:    st,
		Bucket:   bucket,
		Cache:    entityCache,
	}, nil
}

// Shutdown drains cache maintenance work.
func (c *Container) Shutdown() {
	c.Cache.Flush()
}
