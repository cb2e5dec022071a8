package store

// 注意：此包只包含实现，接口定义在 core 包。
// 使用 core.Store 接口。
//
// 示例：
//   var s core.Store = NewFileStore("/var/lib/homeprice")
//   data, err := s.Get(ctx, "models/v3/feature_schema.json")

import (
	"path"
	"strings"
)

// JoinKey 用 "/" 拼接 key，忽略空段并去掉多余的分隔符。
// 所有后端都使用同一种 key 语法，本地文件后端再映射为操作系统路径。
func JoinKey(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return path.Join(nonEmpty...)
}
