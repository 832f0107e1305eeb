// Package updater 定时刷新成分股与日线数据，对应离线预处理流程。
package updater

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
)

// Config 控制批量下载节奏。分批加间隔是为了避开数据源限速。
type Config struct {
	HistoryStart      string
	BatchSize         int
	BatchDelaySeconds int
	Concurrency       int
	CronSpec          string
}

// Updater 执行全量数据刷新。
type Updater struct {
	constituents *dataset.ConstituentsFetcher
	svc          *dataset.Service
	cfg          Config
	cron         *cron.Cron
}

func New(constituents *dataset.ConstituentsFetcher, svc *dataset.Service, cfg Config) (*Updater, error) {
	if constituents == nil {
		return nil, fmt.Errorf("constituents fetcher 不能為空")
	}
	if svc == nil {
		return nil, fmt.Errorf("fetch service 不能為空")
	}
	if cfg.HistoryStart == "" {
		cfg.HistoryStart = "2000-01-01"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchDelaySeconds < 0 {
		cfg.BatchDelaySeconds = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Updater{constituents: constituents, svc: svc, cfg: cfg}, nil
}

// RefreshAll 拉取成分股列表并分批下载全部日线。
// 单股失败只计数不中断；返回错误仅代表刷新流程本身无法继续。
func (u *Updater) RefreshAll(ctx context.Context) error {
	tickers := u.constituents.Fetch(ctx)
	if len(tickers) == 0 {
		return fmt.Errorf("成分股列表為空")
	}
	logger.Infof("開始刷新 %d 檔股票（批大小=%d，並發=%d）", len(tickers), u.cfg.BatchSize, u.cfg.Concurrency)

	var failed atomic.Int64
	for offset := 0; offset < len(tickers); offset += u.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + u.cfg.BatchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[offset:end]

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(u.cfg.Concurrency)
		for _, ticker := range batch {
			ticker := ticker
			group.Go(func() error {
				_, _, err := u.svc.FetchNow(groupCtx, dataset.FetchParams{
					Ticker: ticker,
					Start:  u.cfg.HistoryStart,
				})
				if err != nil {
					logger.Warnf("刷新 %s 失敗: %v", ticker, err)
					failed.Add(1)
				}
				// 单股失败不终止整批。
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		logger.Infof("批次完成 %d/%d", end, len(tickers))

		if end < len(tickers) && u.cfg.BatchDelaySeconds > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(u.cfg.BatchDelaySeconds) * time.Second):
			}
		}
	}
	bad := int(failed.Load())
	logger.Infof("刷新完成：成功 %d，失敗 %d", len(tickers)-bad, bad)
	return nil
}

// Start 按 cron 表达式启动定时刷新；spec 为空则不启动。
func (u *Updater) Start(ctx context.Context) error {
	if u.cfg.CronSpec == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(u.cfg.CronSpec, func() {
		if err := u.RefreshAll(ctx); err != nil {
			logger.Errorf("定時刷新失敗: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron 表達式不合法 (%s): %w", u.cfg.CronSpec, err)
	}
	c.Start()
	u.cron = c
	logger.Infof("定時刷新已啟動：%s", u.cfg.CronSpec)
	return nil
}

// Stop 停止定时任务并等待进行中的刷新返回。
func (u *Updater) Stop() {
	if u.cron == nil {
		return
	}
	<-u.cron.Stop().Done()
	u.cron = nil
}
