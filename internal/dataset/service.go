package dataset

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chihung1024/back-test/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// 任务状态。
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// FetchParams 描述一次拉取提交。
type FetchParams struct {
	Ticker string `json:"ticker"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// FetchJob 是拉取任务的快照。
type FetchJob struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Status    string    `json:"status"`
	Source    string    `json:"source,omitempty"`
	Rows      int       `json:"rows"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceConfig 配置拉取服务。
type ServiceConfig struct {
	Store           *Store
	Sources         []BarSource
	RateLimitPerMin int
	MaxConcurrent   int
}

// Service 负责管理拉取任务：限速、并发控制与落库。
// 数据源按传入顺序尝试（首个为主源，其余备援）。
type Service struct {
	store   *Store
	sources []BarSource

	limiter *rate.Limiter
	sem     chan struct{}

	mu   sync.RWMutex
	jobs map[string]*FetchJob

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能為空")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一個數據源")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 2
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Service{
		store:   cfg.Store,
		sources: append([]BarSource(nil), cfg.Sources...),
		limiter: rate.NewLimiter(ratePerSec, 5),
		sem:     make(chan struct{}, maxConcurrent),
		jobs:    make(map[string]*FetchJob),
		baseCtx: context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// Store 返回底层价格存储。
func (s *Service) Store() *Store { return s.store }

// ManifestInfo 返回指定股票的本地数据概要。
func (s *Service) ManifestInfo(ctx context.Context, ticker string) (Manifest, error) {
	return s.store.Manifest(ctx, ticker)
}

// SubmitFetch 提交异步拉取任务并立即返回任务快照。
func (s *Service) SubmitFetch(params FetchParams) (FetchJob, error) {
	ticker := NormalizeTicker(params.Ticker)
	if ticker == "" {
		return FetchJob{}, fmt.Errorf("ticker 不能為空")
	}
	if strings.TrimSpace(params.Start) == "" {
		return FetchJob{}, fmt.Errorf("start 不能為空")
	}
	now := time.Now()
	job := &FetchJob{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Start:     params.Start,
		End:       params.End,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.runJob(job.ID)
	return *job, nil
}

func (s *Service) runJob(id string) {
	ctx := s.baseCtx
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	job, ok := s.JobSnapshot(id)
	if !ok {
		return
	}
	s.updateJob(id, func(j *FetchJob) { j.Status = JobStatusRunning })

	rows, source, err := s.FetchNow(ctx, FetchParams{Ticker: job.Ticker, Start: job.Start, End: job.End})
	if err != nil {
		s.updateJob(id, func(j *FetchJob) {
			j.Status = JobStatusFailed
			j.Message = err.Error()
		})
		logger.Errorf("拉取任務失敗 ticker=%s: %v", job.Ticker, err)
		return
	}
	s.updateJob(id, func(j *FetchJob) {
		j.Status = JobStatusDone
		j.Rows = rows
		j.Source = source
	})
	logger.Infof("拉取任務完成 ticker=%s rows=%d source=%s", job.Ticker, rows, source)
}

// FetchNow 同步拉取单个 ticker 并写入存储，按顺序尝试各数据源。
// 返回写入行数与实际命中的数据源名。
func (s *Service) FetchNow(ctx context.Context, params FetchParams) (int, string, error) {
	ticker := NormalizeTicker(params.Ticker)
	if ticker == "" {
		return 0, "", fmt.Errorf("ticker 不能為空")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, "", err
	}
	req := FetchRequest{Ticker: ticker, Start: params.Start, End: params.End}
	var lastErr error
	for _, src := range s.sources {
		bars, err := src.Fetch(ctx, req)
		if err != nil {
			lastErr = err
			logger.Warnf("數據源 %s 拉取 %s 失敗，嘗試備援: %v", src.Name(), ticker, err)
			continue
		}
		if len(bars) == 0 {
			lastErr = fmt.Errorf("%s 無數據: %s", src.Name(), ticker)
			continue
		}
		rows, err := s.store.InsertBars(ctx, ticker, bars)
		if err != nil {
			return 0, src.Name(), err
		}
		return rows, src.Name(), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("所有數據源均不可用")
	}
	return 0, "", fmt.Errorf("拉取 %s 失敗: %w", ticker, lastErr)
}

// JobSnapshot 返回指定任务快照。
func (s *Service) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return FetchJob{}, false
	}
	return *job, true
}

// JobsSnapshot 返回全部任务快照（按创建时间倒序）。
func (s *Service) JobsSnapshot() []FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FetchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (s *Service) updateJob(id string, fn func(*FetchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
}
