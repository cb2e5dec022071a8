package feature

import (
	"context"
	"sync"

	"github.com/rushteam/homeprice/core"
)

// Monitor 观察特征转换与对齐中发生的降级，用于发现线上数据漂移
// （新 zipcode 增多、某列整体缺失等）。实现必须并发安全。
type Monitor interface {
	// RecordFallback 记录一次转换降级（date_sentinel、zipcode_unseen 等）
	RecordFallback(ctx context.Context, name string)
	// RecordSubstitution 记录一次对齐时的缺失特征补齐
	RecordSubstitution(ctx context.Context, feature string)
	// RecordSkipped 记录一条被跳过的记录
	RecordSkipped(ctx context.Context, kind core.SkipKind, field string)
}

// NopMonitor 不做任何记录
type NopMonitor struct{}

func (NopMonitor) RecordFallback(context.Context, string)               {}
func (NopMonitor) RecordSubstitution(context.Context, string)           {}
func (NopMonitor) RecordSkipped(context.Context, core.SkipKind, string) {}

// MonitorStats 是 MemoryMonitor 的计数快照
type MonitorStats struct {
	Fallbacks     map[string]int64 `json:"fallbacks"`
	Substitutions map[string]int64 `json:"substitutions"`
	Skipped       map[string]int64 `json:"skipped"` // key 为 kind 或 kind:field
}

// MemoryMonitor 是内存计数实现，用于测试和单机排查
type MemoryMonitor struct {
	mu            sync.Mutex
	fallbacks     map[string]int64
	substitutions map[string]int64
	skipped       map[string]int64
}

// NewMemoryMonitor 创建内存监控
func NewMemoryMonitor() *MemoryMonitor {
	return &MemoryMonitor{
		fallbacks:     make(map[string]int64),
		substitutions: make(map[string]int64),
		skipped:       make(map[string]int64),
	}
}

func (m *MemoryMonitor) RecordFallback(ctx context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[name]++
}

func (m *MemoryMonitor) RecordSubstitution(ctx context.Context, feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.substitutions[feature]++
}

func (m *MemoryMonitor) RecordSkipped(ctx context.Context, kind core.SkipKind, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[string(kind)]++
	if field != "" {
		m.skipped[string(kind)+":"+field]++
	}
}

// Stats 返回当前计数的副本
func (m *MemoryMonitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStats{
		Fallbacks:     copyCounts(m.fallbacks),
		Substitutions: copyCounts(m.substitutions),
		Skipped:       copyCounts(m.skipped),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ Monitor = NopMonitor{}
	_ Monitor = (*MemoryMonitor)(nil)
)
