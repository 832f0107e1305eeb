// Package backtest 实现等权买入持有组合的回测与结果持久化。
package backtest

import (
	"time"

	"github.com/chihung1024/back-test/internal/metric"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Tickers        []string `json:"tickers"`
	Benchmark      string   `json:"benchmark,omitempty"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	InitialBalance float64  `json:"initial_balance"`
}

// RunStats 汇总回测收益与风控指标，供前端展示。
type RunStats struct {
	FinalBalance float64        `json:"final_balance"`
	Profit       float64        `json:"profit"`
	ReturnPct    float64        `json:"return_pct"`
	Days         int            `json:"days"`
	Metrics      metric.Summary `json:"metrics"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Run 表示一次回测任务。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunResult 是模拟器的完整输出。
type RunResult struct {
	Stats     RunStats      `json:"stats"`
	Equity    metric.Series `json:"equity"`
	Benchmark metric.Series `json:"benchmark,omitempty"`
}
