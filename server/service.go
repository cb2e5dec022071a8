package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/homeprice/pkg/logging"
)

// HTTPServer 是 *http.Server 的生命周期方法
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service 把 HTTP 服务包装为可被 suture 监管的服务：
// ctx 取消时在 shutdownTimeout 内优雅关闭。
type Service struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewService 创建受监管的 HTTP 服务，shutdownTimeout <= 0 时取 10s
func NewService(srv HTTPServer, shutdownTimeout time.Duration) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Service{server: srv, shutdownTimeout: shutdownTimeout}
}

// Serve 实现 suture.Service
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		logging.Info().Dur("timeout", s.shutdownTimeout).Msg("http server shutting down")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Service) String() string { return "http-server" }
