package app

import (
	"context"
	"fmt"
	"time"

	"github.com/chihung1024/back-test/internal/backtest"
	btcfg "github.com/chihung1024/back-test/internal/config"
	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/scan"
	transporthttp "github.com/chihung1024/back-test/internal/transport/http"
	"github.com/chihung1024/back-test/internal/updater"
)

// AppBuilder 手工装配全部依赖。
type AppBuilder struct {
	cfg *btcfg.Config

	storeOverride   *dataset.Store
	sourcesOverride []dataset.BarSource
}

type AppBuilderOption func(*AppBuilder)

// WithStore 允许测试注入现成的存储。
func WithStore(store *dataset.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = store }
}

// WithSources 允许测试注入假数据源。
func WithSources(sources []dataset.BarSource) AppBuilderOption {
	return func(b *AppBuilder) { b.sourcesOverride = sources }
}

func NewAppBuilder(cfg *btcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	registry, err := metric.NewRegistry(cfg.Metrics.PresetsPath)
	if err != nil {
		return nil, fmt.Errorf("載入指標定義失敗: %w", err)
	}
	logger.Infof("✓ 已加載 %d 個指標定義", len(registry.Definitions()))

	store := b.storeOverride
	if store == nil {
		store, err = dataset.NewStore(cfg.Data.Root)
		if err != nil {
			return nil, fmt.Errorf("初始化價格存儲失敗: %w", err)
		}
	}

	sources := b.sourcesOverride
	if sources == nil {
		sources = buildSources(cfg.Data)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("沒有可用的數據源")
	}

	dataSvc, err := dataset.NewService(dataset.ServiceConfig{
		Store:           store,
		Sources:         sources,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		MaxConcurrent:   cfg.Data.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	scanSvc, err := scan.NewService(store, scan.WithMaxTickers(cfg.Scan.MaxTickers))
	if err != nil {
		return nil, err
	}

	runStore, err := backtest.NewRunStore(cfg.Backtest.DBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化回測存儲失敗: %w", err)
	}
	sim, err := backtest.NewSimulator(store)
	if err != nil {
		return nil, err
	}
	btSvc, err := backtest.NewService(sim, runStore,
		backtest.WithDefaultBalance(cfg.Backtest.InitialBalance),
		backtest.WithListLimit(cfg.Backtest.ListLimit))
	if err != nil {
		return nil, err
	}

	var upd *updater.Updater
	if cfg.Updater.Enabled {
		fetcher := dataset.NewConstituentsFetcher(cfg.Updater.ConstituentsURL)
		upd, err = updater.New(fetcher, dataSvc, updater.Config{
			HistoryStart:      cfg.Updater.HistoryStart,
			BatchSize:         cfg.Updater.BatchSize,
			BatchDelaySeconds: cfg.Updater.BatchDelaySeconds,
			Concurrency:       cfg.Updater.Concurrency,
			CronSpec:          cfg.Updater.Cron,
		})
		if err != nil {
			return nil, err
		}
	}

	server, err := transporthttp.NewServer(transporthttp.Config{
		Addr:     cfg.App.HTTPAddr,
		Scan:     scanSvc,
		Backtest: btSvc,
		Data:     dataSvc,
		Metrics:  registry,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		metrics:  registry,
		store:    store,
		data:     dataSvc,
		scan:     scanSvc,
		backtest: btSvc,
		updater:  upd,
		server:   server,
	}, nil
}

func buildSources(cfg btcfg.DataConfig) []dataset.BarSource {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	var sources []dataset.BarSource
	for _, name := range cfg.NormalizedSources() {
		switch name {
		case "yahoo":
			sources = append(sources, dataset.NewYahooSource("", timeout))
		case "stooq":
			sources = append(sources, dataset.NewStooqSource("", timeout))
		}
	}
	return sources
}
