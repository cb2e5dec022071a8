// Package builders 注册内置的 Store 后端。
package builders

import (
	"context"

	"github.com/rushteam/homeprice/config"
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/store"
)

func init() {
	config.RegisterStore("file", BuildFileStore)
	config.RegisterStore("memory", BuildMemoryStore)
	config.RegisterStore("badger", BuildBadgerStore)
	config.RegisterStore("s3", BuildS3Store)
	config.RegisterStore("redis", BuildRedisStore)
	config.RegisterStore("http", BuildHTTPStore)
}

func BuildFileStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return store.NewFileStore(cfg.Root), nil
}

func BuildMemoryStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return store.NewMemoryStore(), nil
}

func BuildBadgerStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return store.NewBadgerStore(cfg.Root)
}

func BuildS3Store(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return store.NewS3Store(ctx, store.S3Options{
		Bucket:   cfg.S3.Bucket,
		Region:   cfg.S3.Region,
		Endpoint: cfg.S3.Endpoint,
	})
}

func BuildRedisStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	s, err := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	s.Prefix = cfg.Redis.Prefix
	return s, nil
}

func BuildHTTPStore(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return store.NewHTTPStore(cfg.HTTP.BaseURL, cfg.HTTP.Timeout), nil
}
