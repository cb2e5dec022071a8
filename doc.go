// Package homeprice 是房价预测的特征一致性与推理管线。
//
// 设计要点：
// - 训练与服务一致：推理时使用与训练同一套 schema、编码器、区域映射和标准化参数，
//   特征按 schema 的列顺序对齐后再交给模型打分
// - 快照原子切换：产物整体加载为不可变快照，重载失败时继续使用旧快照
// - 逐条容错：单条记录无效或命中异常值只跳过该条，批次级错误才整体失败
// - 存储可插拔：产物与批处理输入输出都通过 core.Store 读写（本地文件、S3、Redis、HTTP、Badger）
//
// 入口见 cmd/homeprice；HTTP 接口见 server，离线批处理见 batch。
package homeprice

import (
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pipeline"
)

// 轻量 facade：便于直接 import "homeprice" 使用核心抽象。
type (
	Pipeline   = pipeline.Pipeline
	Snapshot   = pipeline.Snapshot
	Health     = pipeline.Health
	RawRecord  = core.RawRecord
	Prediction = core.Prediction
)

// New 创建推理管线，见 pipeline.New
var New = pipeline.New
