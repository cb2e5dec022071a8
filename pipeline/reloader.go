package pipeline

import (
	"context"
	"time"

	"github.com/rushteam/homeprice/pkg/logging"
)

// DefaultReloadInterval 未配置时检查产物版本的间隔
const DefaultReloadInterval = time.Minute

// VersionSource 报告存储中当前发布的产物版本
type VersionSource interface {
	RemoteVersion(ctx context.Context) (string, error)
	// Invalidate 丢弃本地缓存的旧产物
	Invalidate(ctx context.Context) error
}

// Reloader 定期检查发布的产物版本，版本变化时重新加载并原子替换快照。
// 实现 suture.Service，由进程的 supervisor 托管。
type Reloader struct {
	Pipeline *Pipeline
	Source   VersionSource
	Interval time.Duration
}

// NewReloader 创建定期重载服务
func NewReloader(p *Pipeline, src VersionSource, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	return &Reloader{Pipeline: p, Source: src, Interval: interval}
}

// Serve 阻塞直到 ctx 取消
func (r *Reloader) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// Check 比较一次版本，必要时重载。返回是否发生了替换。
func (r *Reloader) Check(ctx context.Context) bool {
	remote, err := r.Source.RemoteVersion(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("artifact version check failed")
		return false
	}
	current := ""
	if snap := r.Pipeline.Snapshot(); snap != nil {
		current = snap.Version
	}
	// 尚未加载成功时每次都重试
	if current != "" && remote == current {
		return false
	}
	logging.Info().Str("current", current).Str("remote", remote).Msg("artifact version changed, reloading")
	if err := r.Source.Invalidate(ctx); err != nil {
		logging.Warn().Err(err).Msg("artifact cache invalidation failed")
	}
	return r.Pipeline.Reload(ctx) == nil
}

func (r *Reloader) String() string { return "artifact-reloader" }
