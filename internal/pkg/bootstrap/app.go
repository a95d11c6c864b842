// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vertex/internal/pkg/logger"
	"vertex/internal/pkg/tracing"
)

type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)             // 每个服务注册自己的 HTTP 路由
	Background       func(ctx context.Context) error // 可选的后台任务（如 TTL 清扫），随服务生命周期启停
	OnShutdown       func(ctx context.Context)       // 可选的额外清理钩子
}

// StartService 封装了通用的启动和优雅关停逻辑。
// 调用方在此之前应已完成 Init() 和依赖组装。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)

	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	if err := StartPricingWatch(GetCurrentConfig()); err != nil {
		// 配置中心连不上只降级，不阻止启动
		logger.Logger.Warn().Err(err).Msg("pricing config watch unavailable")
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(bgCtx)

	g.Go(func() error {
		logger.Logger.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if info.Background != nil {
		g.Go(func() error {
			return info.Background(gCtx)
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Logger.Info().Msgf("shutting down service %s...", info.ServiceName)
	case <-gCtx.Done():
		logger.Logger.Error().Msg("component failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序：后台任务 -> 配置中心 -> tracer -> HTTP
	bgCancel()

	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}
	closeNacos()

	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}

	if err := g.Wait(); err != nil {
		logger.Logger.Error().Err(err).Msg("component exited with error")
	}
	logger.Logger.Info().Msgf("service %s gracefully shut down", info.ServiceName)
}
