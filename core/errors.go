package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型（或由其包装）
//   - 提供错误代码（Code）和消息（Message）
//   - 支持 errors.Is 按 Module + Code 匹配
//
// 使用场景：
//   - Artifact 错误：ARTIFACT_MISSING, ARTIFACT_CORRUPT
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - Model 错误：MODEL_NOT_LOADED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "ARTIFACT_MISSING"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "artifact", "model"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 让 errors.Is 可以按 Module + Code 匹配哨兵错误，
// 这样 fmt.Errorf("...: %w", ErrArtifactMissing) 之后仍能识别。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound        = "NOT_FOUND"        // 资源不存在
	ErrorCodeNotSupported    = "NOT_SUPPORTED"    // 操作不支持
	ErrorCodeInvalidInput    = "INVALID_INPUT"    // 输入无效
	ErrorCodeArtifactMissing = "ARTIFACT_MISSING" // 训练产物不存在
	ErrorCodeArtifactCorrupt = "ARTIFACT_CORRUPT" // 训练产物结构无效
	ErrorCodeModelNotLoaded  = "MODEL_NOT_LOADED" // 模型尚未加载
	ErrorCodeScoring         = "SCORING_FAILED"   // 模型打分失败
	ErrorCodePrediction      = "PREDICTION_FAILED"
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleArtifact = "artifact" // 训练产物（编码器、特征 schema、模型）
	ModuleFeature  = "feature"  // 特征模块
	ModuleModel    = "model"    // 模型模块
	ModulePipeline = "pipeline" // 推理流水线
)

var (
	// ErrArtifactMissing 表示产物位置无法解析为有效内容（key 不存在、读取失败）。
	ErrArtifactMissing = NewDomainError(ModuleArtifact, ErrorCodeArtifactMissing, "artifact: missing")

	// ErrArtifactCorrupt 表示产物可以反序列化，但缺少必要的结构字段。
	ErrArtifactCorrupt = NewDomainError(ModuleArtifact, ErrorCodeArtifactCorrupt, "artifact: corrupt")

	// ErrModelNotLoaded 表示当前没有可用的快照。
	ErrModelNotLoaded = NewDomainError(ModuleModel, ErrorCodeModelNotLoaded, "model: not loaded")
)

// IsArtifactMissing 检查错误是否为 ARTIFACT_MISSING
func IsArtifactMissing(err error) bool {
	return errors.Is(err, ErrArtifactMissing)
}

// IsArtifactCorrupt 检查错误是否为 ARTIFACT_CORRUPT
func IsArtifactCorrupt(err error) bool {
	return errors.Is(err, ErrArtifactCorrupt)
}

// ArtifactMissing 包装底层错误并标记为 ARTIFACT_MISSING。
func ArtifactMissing(key string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, key)
	}
	return fmt.Errorf("%w: %s: %w", ErrArtifactMissing, key, cause)
}

// ArtifactCorrupt 标记为 ARTIFACT_CORRUPT，并附带具体原因。
func ArtifactCorrupt(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrArtifactCorrupt, key, fmt.Sprintf(format, args...))
}

// SkipKind 是被跳过记录的分类。
type SkipKind string

const (
	SkipInvalid SkipKind = "invalid" // 结构无效（缺少必填字段、核心数值无法解析）
	SkipOutlier SkipKind = "outlier" // 命中异常值策略
)

// InvalidRecordError 是单条记录级别的软错误：记录被跳过，不影响同批其他记录。
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Reason)
}

// OutlierError 表示记录命中了异常值策略。
type OutlierError struct {
	Rule string
}

func (e *OutlierError) Error() string {
	return fmt.Sprintf("outlier: %s", e.Rule)
}

// ScoringError 是批级别的模型调用失败，携带受影响的输入下标区间 [Start, End)。
type ScoringError struct {
	Start int
	End   int
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring failed for rows [%d, %d): %v", e.Start, e.End, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, &DomainError{Module: model, Code: SCORING_FAILED}) 成立。
func (e *ScoringError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Module == ModuleModel && t.Code == ErrorCodeScoring
}

// PredictionError 是整个 Predict 调用的致命错误，不返回任何部分结果。
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
