package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/homeprice/config"
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/feast"
	"github.com/rushteam/homeprice/metrics"
	"github.com/rushteam/homeprice/pipeline"
	"github.com/rushteam/homeprice/pkg/logging"
)

// app 是各子命令共享的依赖
type app struct {
	cfg       *config.Config
	artifacts core.Store
	loader    *pipeline.ArtifactLoader
	pipeline  *pipeline.Pipeline
	closers   []func() error
}

// newApp 加载配置、初始化日志并构建产物 Store 与推理管线（尚未加载快照）
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Log)

	a := &app{cfg: cfg}
	a.artifacts, err = config.BuildStore(ctx, cfg.Artifacts.Store)
	if err != nil {
		return nil, fmt.Errorf("artifacts store: %w", err)
	}
	a.closers = append(a.closers, a.artifacts.Close)

	opts := cfg.PipelineOptions()
	if cfg.Feast.Enabled {
		client, err := newFeastClient(cfg.Feast)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		src := feast.NewRegionSource(client, cfg.Feast.Feature)
		if cfg.Feast.Entity != "" {
			src.EntityKey = cfg.Feast.Entity
		}
		opts.Regions = src
		logging.Info().Str("endpoint", cfg.Feast.Endpoint).Str("feature", cfg.Feast.Feature).Msg("feast region source enabled")
	}

	a.loader, err = pipeline.NewArtifactLoader(a.artifacts, cfg.Artifacts.Location, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	collector := metrics.NewCollector()
	a.pipeline = pipeline.New(a.loader, pipeline.WithMonitor(collector), pipeline.WithObserver(collector))
	return a, nil
}

func newFeastClient(cfg config.FeastConfig) (feast.Client, error) {
	var opts []feast.ClientOption
	if cfg.Timeout > 0 {
		opts = append(opts, feast.WithTimeout(cfg.Timeout))
	}
	if cfg.Token != "" {
		opts = append(opts, feast.WithAuth(&feast.AuthConfig{Type: "static", Token: cfg.Token}))
	}
	client, err := feast.NewClient(cfg.Endpoint, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("feast client: %w", err)
	}
	return client, nil
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
