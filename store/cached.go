package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pkg/logging"
)

// CachedStore 是读穿透缓存：先读本地 Local，未命中再读远端 Remote 并回写 Local。
// 远端的产物只下载一次，进程重启后直接使用本地副本。
//
// 注意：缓存不会自动失效。产物以版本目录（如 models/v3/）发布时，
// 新版本天然是新的 key；同 key 覆盖发布需要调用 Invalidate 或清空本地缓存。
type CachedStore struct {
	Remote core.Store
	Local  core.Store
}

// NewCachedStore 创建读穿透缓存
func NewCachedStore(remote, local core.Store) *CachedStore {
	return &CachedStore{Remote: remote, Local: local}
}

func (c *CachedStore) Name() string {
	return c.Remote.Name() + "+" + c.Local.Name()
}

func (c *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.Local.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !core.IsStoreNotFound(err) {
		logging.Warn().Err(err).Str("key", key).Msg("local cache read failed, falling back to remote")
	}

	data, err = c.Remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.Local.Set(ctx, key, data); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("local cache write failed")
	} else {
		logging.Info().Str("key", key).Str("remote", c.Remote.Name()).Msg("artifact cached locally")
	}
	return data, nil
}

// Set 同时写入远端和本地，远端失败则不写本地。
func (c *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := c.Remote.Set(ctx, key, value); err != nil {
		return err
	}
	return c.Local.Set(ctx, key, value)
}

// List 以远端为准；远端不支持列举时退回本地。
func (c *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.Remote.List(ctx, prefix)
	if errors.Is(err, core.ErrStoreNotSupported) {
		return c.Local.List(ctx, prefix)
	}
	return keys, err
}

// Invalidate 把 key 从本地缓存中移除（若本地后端支持删除）。
func (c *CachedStore) Invalidate(ctx context.Context, key string) error {
	d, ok := c.Local.(interface {
		Delete(ctx context.Context, key string) error
	})
	if !ok {
		return fmt.Errorf("%w: %s cannot delete", core.ErrStoreNotSupported, c.Local.Name())
	}
	return d.Delete(ctx, key)
}

func (c *CachedStore) Close() error {
	return errors.Join(c.Remote.Close(), c.Local.Close())
}

var _ core.Store = (*CachedStore)(nil)
