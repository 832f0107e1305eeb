package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/render"
)

// Service 负责回测任务的提交、执行与查询。
type Service struct {
	sim            *Simulator
	runs           *RunStore
	baseCtx        context.Context
	defaultBalance float64
	listLimit      int
}

type ServiceOption func(*Service)

// WithDefaultBalance 设置未指定初始资金时的默认值。
func WithDefaultBalance(balance float64) ServiceOption {
	return func(s *Service) {
		if balance > 0 {
			s.defaultBalance = balance
		}
	}
}

// WithListLimit 设置查询列表时的默认条数上限。
func WithListLimit(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

func NewService(sim *Simulator, runs *RunStore, opts ...ServiceOption) (*Service, error) {
	if sim == nil {
		return nil, fmt.Errorf("simulator 不能為空")
	}
	if runs == nil {
		return nil, fmt.Errorf("run store 不能為空")
	}
	s := &Service{
		sim:            sim,
		runs:           runs,
		baseCtx:        context.Background(),
		defaultBalance: 10000,
		listLimit:      50,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// StartRun 校验参数、落库 pending 并异步执行。
func (s *Service) StartRun(cfg RunConfig) (Run, error) {
	if err := s.validateRunConfig(&cfg); err != nil {
		return Run{}, err
	}
	run := Run{
		ID:        uuid.NewString(),
		Status:    RunStatusPending,
		Config:    cfg,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.runs.Create(run); err != nil {
		return Run{}, err
	}
	go s.execute(run.ID, cfg)
	return run, nil
}

func (s *Service) execute(id string, cfg RunConfig) {
	ctx := s.baseCtx
	if err := s.runs.SetStatus(id, RunStatusRunning, ""); err != nil {
		logger.Errorf("回測 %s 置為 running 失敗: %v", id, err)
		return
	}
	result, err := s.sim.Run(ctx, cfg)
	if err != nil {
		logger.Errorf("回測 %s 執行失敗: %v", id, err)
		if err := s.runs.SetStatus(id, RunStatusFailed, err.Error()); err != nil {
			logger.Errorf("回測 %s 置為 failed 失敗: %v", id, err)
		}
		return
	}
	if err := s.runs.Finish(id, result); err != nil {
		logger.Errorf("回測 %s 結果落庫失敗: %v", id, err)
		return
	}
	logger.Infof("回測 %s 完成：final=%.2f return=%.2f%%", id, result.Stats.FinalBalance, result.Stats.ReturnPct*100)
}

// GetRun 查询单条回测。
func (s *Service) GetRun(id string) (Run, error) {
	return s.runs.Get(id)
}

// ListRuns 查询最近的回测；limit 不为正时使用配置的默认条数。
func (s *Service) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	return s.runs.List(limit)
}

// ChartHTML 渲染已完成回测的净值曲线页面。
func (s *Service) ChartHTML(id string) ([]byte, error) {
	run, equity, bench, err := s.loadForChart(id)
	if err != nil {
		return nil, err
	}
	return render.EquityChartHTML(chartInput(run, equity, bench))
}

// ChartPNG 渲染净值曲线截图（需要 headless Chrome）。
func (s *Service) ChartPNG(ctx context.Context, id string) ([]byte, error) {
	run, equity, bench, err := s.loadForChart(id)
	if err != nil {
		return nil, err
	}
	return render.EquityChartPNG(ctx, chartInput(run, equity, bench))
}

func (s *Service) loadForChart(id string) (Run, metric.Series, metric.Series, error) {
	run, err := s.runs.Get(id)
	if err != nil {
		return Run{}, nil, nil, err
	}
	if run.Status != RunStatusDone {
		return Run{}, nil, nil, fmt.Errorf("回測 %s 尚未完成（%s）", id, run.Status)
	}
	equity, bench, err := s.runs.Equity(id)
	if err != nil {
		return Run{}, nil, nil, err
	}
	return run, equity, bench, nil
}

func chartInput(run Run, equity, bench metric.Series) render.EquityChartInput {
	return render.EquityChartInput{
		Title:     strings.Join(run.Config.Tickers, " / "),
		Subtitle:  fmt.Sprintf("%s ~ %s | 報酬 %.2f%%", run.Config.Start, run.Config.End, run.Stats.ReturnPct*100),
		Equity:    equity,
		Benchmark: bench,
	}
}

func (s *Service) validateRunConfig(cfg *RunConfig) error {
	if len(cfg.Tickers) == 0 {
		return fmt.Errorf("股票代碼列表不可為空")
	}
	for i, t := range cfg.Tickers {
		cfg.Tickers[i] = dataset.NormalizeTicker(t)
		if cfg.Tickers[i] == "" {
			return fmt.Errorf("存在空的股票代碼")
		}
	}
	if strings.TrimSpace(cfg.Start) == "" {
		return fmt.Errorf("start 不能為空")
	}
	if _, err := time.Parse("2006-01-02", cfg.Start); err != nil {
		return fmt.Errorf("start 格式錯誤: %w", err)
	}
	if cfg.End == "" {
		cfg.End = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", cfg.End); err != nil {
		return fmt.Errorf("end 格式錯誤: %w", err)
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = s.defaultBalance
	}
	return nil
}
