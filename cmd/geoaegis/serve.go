// file: cmd/geoaegis/serve.go

package main

import (
	"GeoAegis/aegconf"
	"GeoAegis/internal/aegmiddleware"
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/service"
	"GeoAegis/internal/transport/http/router"
	"GeoAegis/internal/tsquery"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	authMaxFailures = 10
	authLockout     = 15 * time.Minute
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 查询服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.ConfigPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := aegconf.Load(configPath)
	if err != nil {
		return err
	}
	aegobserve.InitLogger(cfg.Server.LogLevel)
	slog.Info("GeoAegis starting up", "version", version, "config", configPath, "resources", len(cfg.Resources))

	aegobserve.Register()
	if pprofSrv := aegobserve.EnablePprof(cfg.Server.PprofAddr); pprofSrv != nil {
		defer pprofSrv.Close()
	}

	compiler := tsquery.NewCache(0, 0)
	registry, err := service.NewRegistry(cfg.Resources, service.DefaultOpener(compiler))
	if err != nil {
		return fmt.Errorf("初始化数据源注册表失败: %w", err)
	}
	defer func() {
		slog.Info("正在关闭所有数据源...")
		_ = registry.Close()
	}()

	err = aegconf.Watch(ctx, configPath, 0, func(next *aegconf.Config) {
		aegobserve.SetLevel(next.Server.LogLevel)
		if err := registry.Reload(next.Resources); err != nil {
			slog.Error("[ConfigWatcher] 应用新配置失败", "error", err)
		}
	})
	if err != nil {
		slog.Warn("配置热加载未启用", "error", err)
	}

	deps := router.Dependencies{
		Service:     service.NewFinder(registry),
		Health:      registry.HealthCheck,
		CORSOrigins: cfg.Server.CORSOrigins,
	}
	rl := cfg.Server.RateLimit
	if rl.PerSecond > 0 || rl.GlobalPerSecond > 0 {
		deps.RateLimiter = aegmiddleware.NewRateLimiter(rl.GlobalPerSecond, rl.GlobalBurst, rl.PerSecond, rl.Burst)
	}
	if cfg.Server.JWTSecret != "" {
		deps.Auth = aegmiddleware.NewTokenAuth(cfg.Server.JWTSecret, authMaxFailures, authLockout)
	} else {
		slog.Warn("未配置 jwt_secret，查询接口不要求认证")
	}

	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("GeoAegis 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("HTTP服务启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("收到停机信号，准备优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP服务优雅关闭失败: %w", err)
	}
	slog.Info("HTTP服务已成功关闭。")
	return nil
}
