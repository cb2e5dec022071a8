package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pkg/logging"
	"github.com/rushteam/homeprice/store"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/homeprice/config/builders"
// 以触发内置 Store 后端（file、memory、s3、redis、badger、http）的 init 注册。

// StoreBuilder 根据配置构建一个 Store 后端。
// 各后端在 init 中调用 RegisterStore(name, builder) 即可被配置驱动。
type StoreBuilder func(ctx context.Context, cfg StoreConfig) (core.Store, error)

var (
	storeBuilders   = make(map[string]StoreBuilder)
	storeBuildersMu sync.RWMutex
)

// 本地后端不需要再套一层本地缓存
var localBackends = map[string]bool{"file": true, "memory": true, "badger": true}

// RegisterStore 注册一种 Store 后端的构建逻辑。
// 建议在 init 中调用，例如：func init() { config.RegisterStore("s3", BuildS3Store) }
func RegisterStore(name string, builder StoreBuilder) {
	if name == "" || builder == nil {
		return
	}
	storeBuildersMu.Lock()
	defer storeBuildersMu.Unlock()
	storeBuilders[name] = builder
}

// SupportedStores 返回已注册的后端名称（排序），用于错误提示与校验。
func SupportedStores() []string {
	storeBuildersMu.RLock()
	defer storeBuildersMu.RUnlock()
	names := make([]string, 0, len(storeBuilders))
	for n := range storeBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsStoreRegistered 返回后端是否已注册
func IsStoreRegistered(name string) bool {
	storeBuildersMu.RLock()
	defer storeBuildersMu.RUnlock()
	_, ok := storeBuilders[name]
	return ok
}

// BuildStore 按配置构建 Store。远端后端配置了 CacheDir 时，
// 用 Badger 本地缓存包装为读穿透的 store.CachedStore。
func BuildStore(ctx context.Context, cfg StoreConfig) (core.Store, error) {
	s, err := buildBackend(ctx, cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheDir == "" || localBackends[cfg.Backend] {
		return s, nil
	}
	local, err := buildBackend(ctx, "badger", StoreConfig{Backend: "badger", Root: cfg.CacheDir})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("创建本地缓存失败: %w", err)
	}
	logging.Info().Str("backend", cfg.Backend).Str("cache_dir", cfg.CacheDir).Msg("store wrapped with local cache")
	return store.NewCachedStore(s, local), nil
}

func buildBackend(ctx context.Context, name string, cfg StoreConfig) (core.Store, error) {
	storeBuildersMu.RLock()
	builder, ok := storeBuilders[name]
	storeBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported store backend %q (supported: %v)", name, SupportedStores())
	}
	s, err := builder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("构建 %s 存储失败: %w", name, err)
	}
	return s, nil
}
