// Package config 加载服务配置：默认值 -> YAML 文件 -> 环境变量（HOMEPRICE_*）-> 校验。
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/homeprice/batch"
	"github.com/rushteam/homeprice/feature"
	"github.com/rushteam/homeprice/model"
	"github.com/rushteam/homeprice/pipeline"
	"github.com/rushteam/homeprice/pkg/logging"
)

// EnvPrefix 环境变量前缀，例如 HOMEPRICE_SERVER_ADDR、HOMEPRICE_ARTIFACTS_STORE_BACKEND
const EnvPrefix = "HOMEPRICE"

// Config 是服务的完整配置
type Config struct {
	Log       logging.Config        `yaml:"log" envconfig:"LOG"`
	Server    ServerConfig          `yaml:"server" envconfig:"SERVER"`
	Artifacts ArtifactsConfig       `yaml:"artifacts" envconfig:"ARTIFACTS"`
	Features  FeaturesConfig        `yaml:"features" envconfig:"FEATURES"`
	Outliers  feature.OutlierConfig `yaml:"outliers" envconfig:"OUTLIERS"`
	Scoring   ScoringConfig         `yaml:"scoring" envconfig:"SCORING"`
	Batch     BatchConfig           `yaml:"batch" envconfig:"BATCH"`
	Feast     FeastConfig           `yaml:"feast" envconfig:"FEAST"`
	Metrics   MetricsConfig         `yaml:"metrics" envconfig:"METRICS"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR" validate:"required"`
	// APIKey 非空时 /predict 等写操作需要 X-API-Key 头
	APIKey          string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// RateLimit 每个客户端 IP 每分钟的请求数，0 表示不限制
	RateLimit    int   `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"gte=0"`
	MaxBodyBytes int64 `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
	// MaxRecords 单次 /predict 的记录数上限
	MaxRecords int `yaml:"max_records" envconfig:"MAX_RECORDS" validate:"gt=0"`
}

// StoreConfig 描述一个 Store 后端，由注册表构建（见 RegisterStore）
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" validate:"required"`
	// Root file 后端的根目录
	Root string `yaml:"root" envconfig:"ROOT"`
	// CacheDir 非空时用该目录下的 Badger 作为远端后端的本地读缓存
	CacheDir string      `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	S3       S3Config    `yaml:"s3" envconfig:"S3"`
	Redis    RedisConfig `yaml:"redis" envconfig:"REDIS"`
	HTTP     HTTPConfig  `yaml:"http" envconfig:"HTTP"`
}

// S3Config S3 兼容对象存储
type S3Config struct {
	Bucket   string `yaml:"bucket" envconfig:"BUCKET"`
	Region   string `yaml:"region" envconfig:"REGION"`
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
}

// RedisConfig Redis 连接
type RedisConfig struct {
	Addr   string `yaml:"addr" envconfig:"ADDR"`
	DB     int    `yaml:"db" envconfig:"DB" validate:"gte=0"`
	Prefix string `yaml:"prefix" envconfig:"PREFIX"`
}

// HTTPConfig 只读 HTTP 后端
type HTTPConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ArtifactsConfig 训练产物的位置与重载策略
type ArtifactsConfig struct {
	Store    StoreConfig              `yaml:"store" envconfig:"STORE"`
	Location feature.ArtifactLocation `yaml:"location" envconfig:"LOCATION"`
	ModelKey string                   `yaml:"model_key" envconfig:"MODEL_KEY"`
	// ReloadInterval 检查产物版本的间隔，0 表示不自动重载
	ReloadInterval time.Duration `yaml:"reload_interval" envconfig:"RELOAD_INTERVAL"`
}

// FeaturesConfig 特征转换与对齐
type FeaturesConfig struct {
	// ExpectedFeatures > 0 时校验产物的特征数（n_features_expected）
	ExpectedFeatures        int `yaml:"expected_features" envconfig:"EXPECTED_FEATURES" validate:"gte=0"`
	feature.TransformOptions `yaml:",inline"`
	feature.AlignOptions     `yaml:",inline"`
}

// ScoringConfig 模型打分
type ScoringConfig struct {
	BatchSize int              `yaml:"batch_size" envconfig:"BATCH_SIZE" validate:"gte=0"`
	RPC       model.RPCOptions `yaml:"rpc" envconfig:"RPC"`
}

// BatchConfig 批处理：输入输出所在的 Store 以及分块参数
type BatchConfig struct {
	Store        StoreConfig `yaml:"store" envconfig:"STORE"`
	batch.Config `yaml:",inline"`
}

// FeastConfig 在线特征库，用于在加载阶段补充 zipcode -> 城市映射
type FeastConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Endpoint string        `yaml:"endpoint" envconfig:"ENDPOINT" validate:"required_if=Enabled true"`
	Project  string        `yaml:"project" envconfig:"PROJECT"`
	Feature  string        `yaml:"feature" envconfig:"FEATURE"`
	Entity   string        `yaml:"entity" envconfig:"ENTITY"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Token    string        `yaml:"token" envconfig:"TOKEN"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Path    string `yaml:"path" envconfig:"PATH" validate:"omitempty,startswith=/"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
			MaxRecords:      10000,
		},
		Artifacts: ArtifactsConfig{
			Store:    StoreConfig{Backend: "file", Root: "./data"},
			Location: feature.ArtifactLocation{Prefix: "models"}.WithDefaults(),
			ModelKey: model.DefaultModelKey,
		},
		Scoring: ScoringConfig{
			BatchSize: model.DefaultBatchSize,
			RPC: model.RPCOptions{
				Timeout:          5 * time.Second,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Batch: BatchConfig{
			Store:  StoreConfig{Backend: "file", Root: "./data"},
			Config: batch.Config{}.WithDefaults(),
		},
		Feast: FeastConfig{
			Feature: "zipcode_regions:city_full",
			Entity:  "zipcode",
			Timeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load 按 默认值 -> YAML -> 环境变量 的顺序加载配置并校验。path 为空时跳过文件。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate 校验结构体标签以及跨字段约束
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, sc := range map[string]StoreConfig{"artifacts": c.Artifacts.Store, "batch": c.Batch.Store} {
		if err := sc.validate(); err != nil {
			return fmt.Errorf("%s.store: %w", name, err)
		}
	}
	if _, err := feature.NewOutlierPolicy(c.Outliers); err != nil {
		return fmt.Errorf("outliers: %w", err)
	}
	return nil
}

func (sc StoreConfig) validate() error {
	if !IsStoreRegistered(sc.Backend) {
		return fmt.Errorf("unsupported backend %q (supported: %v)", sc.Backend, SupportedStores())
	}
	switch sc.Backend {
	case "file", "badger":
		if sc.Root == "" {
			return fmt.Errorf("%s backend requires root", sc.Backend)
		}
	case "s3":
		if sc.S3.Bucket == "" {
			return fmt.Errorf("s3 backend requires s3.bucket")
		}
	case "redis":
		if sc.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires redis.addr")
		}
	case "http":
		if sc.HTTP.BaseURL == "" {
			return fmt.Errorf("http backend requires http.base_url")
		}
	}
	return nil
}

// PipelineOptions 把配置转换为快照构建参数
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		ExpectedFeatures: c.Features.ExpectedFeatures,
		Transform:        c.Features.TransformOptions,
		Align:            c.Features.AlignOptions,
		Outliers:         c.Outliers,
		BatchSize:        c.Scoring.BatchSize,
		RPC:              c.Scoring.RPC,
		ModelKey:         c.Artifacts.ModelKey,
	}
}
