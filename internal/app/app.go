// Package app 负责应用级编排：加载配置→装配依赖→启动 HTTP 与定时刷新。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chihung1024/back-test/internal/backtest"
	btcfg "github.com/chihung1024/back-test/internal/config"
	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/scan"
	transporthttp "github.com/chihung1024/back-test/internal/transport/http"
	"github.com/chihung1024/back-test/internal/updater"
)

type App struct {
	cfg      *btcfg.Config
	metrics  *metric.Registry
	store    *dataset.Store
	data     *dataset.Service
	scan     *scan.Service
	backtest *backtest.Service
	updater  *updater.Updater
	server   *transporthttp.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *btcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return NewAppBuilder(cfg).Build(context.Background())
}

// Scan 暴露掃描服务（供 CLI 模式直接调用）。
func (a *App) Scan() *scan.Service { return a.scan }

// Metrics 暴露指标注册表。
func (a *App) Metrics() *metric.Registry { return a.metrics }

// Updater 暴露数据刷新器；未启用时为 nil。
func (a *App) Updater() *updater.Updater { return a.updater }

// Run 启动 HTTP 服务与定时刷新，阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.data.SetContext(ctx)
	a.backtest.SetContext(ctx)

	if a.updater != nil {
		if err := a.updater.Start(ctx); err != nil {
			return err
		}
		defer a.updater.Stop()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP 服務監聽 %s", a.cfg.App.HTTPAddr)
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	err := group.Wait()
	if closeErr := a.Close(); closeErr != nil {
		logger.Warnf("關閉資源失敗: %v", closeErr)
	}
	return err
}

// Close 释放底层存储资源。
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
