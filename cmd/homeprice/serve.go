package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/homeprice/batch"
	"github.com/rushteam/homeprice/config"
	"github.com/rushteam/homeprice/pipeline"
	"github.com/rushteam/homeprice/pkg/logging"
	"github.com/rushteam/homeprice/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP inference API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	// 启动时加载失败不退出：服务以 unhealthy 状态运行，等待重载
	if err := a.pipeline.Reload(ctx); err != nil {
		logging.Warn().Err(err).Msg("starting without a loaded model")
	}

	data, err := config.BuildStore(ctx, cfg.Batch.Store)
	if err != nil {
		return fmt.Errorf("batch store: %w", err)
	}
	defer data.Close()
	runner := batch.NewRunner(data, a.pipeline, cfg.Batch.Config)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	api := server.New(a.pipeline, runner, server.Options{
		APIKey:       cfg.Server.APIKey,
		RateLimit:    cfg.Server.RateLimit,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		MaxRecords:   cfg.Server.MaxRecords,
		MetricsPath:  metricsPath,
	})
	if cfg.Server.APIKey == "" {
		logging.Warn().Msg("api key not set, write endpoints are unauthenticated")
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sup := suture.New("homeprice", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: cfg.Server.ShutdownTimeout,
	})
	sup.Add(server.NewService(httpServer, cfg.Server.ShutdownTimeout))
	if cfg.Artifacts.ReloadInterval > 0 {
		sup.Add(pipeline.NewReloader(a.pipeline, a.loader, cfg.Artifacts.ReloadInterval))
	}

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("version", version).
		Dur("reload_interval", cfg.Artifacts.ReloadInterval).
		Msg("homeprice serving")
	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("homeprice stopped")
	return nil
}
