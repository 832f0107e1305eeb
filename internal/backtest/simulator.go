package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/metric"
)

// Simulator 执行等权买入持有回测：起始日按等权分配资金买入，
// 之后不再调仓，缺日收盘价沿用前值。
type Simulator struct {
	store *dataset.Store
}

func NewSimulator(store *dataset.Store) (*Simulator, error) {
	if store == nil {
		return nil, fmt.Errorf("store 不能為空")
	}
	return &Simulator{store: store}, nil
}

// Run 执行一次回测。份额与净值用 decimal 结算，避免长区间的浮点累积误差；
// 绩效指标仍在 float64 域计算。
func (s *Simulator) Run(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if len(cfg.Tickers) == 0 {
		return RunResult{}, fmt.Errorf("股票代碼列表不可為空")
	}
	if cfg.InitialBalance <= 0 {
		return RunResult{}, fmt.Errorf("初始資金需 > 0")
	}

	closes := make(map[string]map[string]float64, len(cfg.Tickers))
	for _, raw := range cfg.Tickers {
		ticker := dataset.NormalizeTicker(raw)
		bars, err := s.store.RangeBars(ctx, ticker, cfg.Start, cfg.End)
		if err != nil {
			return RunResult{}, err
		}
		if len(bars) == 0 {
			return RunResult{}, fmt.Errorf("找不到數據: %s", ticker)
		}
		byDay := make(map[string]float64, len(bars))
		for _, b := range bars {
			byDay[b.Day] = b.Close
		}
		closes[ticker] = byDay
	}

	days := unionDays(closes)
	// 从所有标的都有报价的第一天起算，保证等权买入价完整。
	start := firstCompleteDay(days, closes)
	if start < 0 {
		return RunResult{}, fmt.Errorf("區間內不存在所有標的同時有報價的交易日")
	}
	days = days[start:]
	if len(days) < 2 {
		return RunResult{}, fmt.Errorf("有效交易日不足（%d 天）", len(days))
	}

	// 等权买入：每只标的分得 initial/n，换算成固定份额。
	n := decimal.NewFromInt(int64(len(closes)))
	allocation := decimal.NewFromFloat(cfg.InitialBalance).Div(n)
	shares := make(map[string]decimal.Decimal, len(closes))
	lastClose := make(map[string]decimal.Decimal, len(closes))
	for ticker, byDay := range closes {
		first := decimal.NewFromFloat(byDay[days[0]])
		if first.IsZero() {
			return RunResult{}, fmt.Errorf("%s 起始收盤價為 0", ticker)
		}
		shares[ticker] = allocation.Div(first)
		lastClose[ticker] = first
	}

	equity := make(metric.Series, 0, len(days))
	for _, day := range days {
		total := decimal.Zero
		for ticker, qty := range shares {
			if c, ok := closes[ticker][day]; ok {
				lastClose[ticker] = decimal.NewFromFloat(c)
			}
			total = total.Add(qty.Mul(lastClose[ticker]))
		}
		ts, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		value, _ := total.Float64()
		equity = append(equity, metric.Point{Day: ts, Value: value})
	}

	var bench metric.Series
	if cfg.Benchmark != "" {
		benchTicker := dataset.NormalizeTicker(cfg.Benchmark)
		series, err := s.store.LoadSeries(ctx, benchTicker, days[0], cfg.End)
		if err != nil {
			logger.Warnf("基準 %s 載入失敗，略過基準對比: %v", benchTicker, err)
		} else {
			bench = series
		}
	}

	summary := metric.Compute(equity, bench, metric.DefaultRiskFreeRate)
	final := equity.Last().Value
	stats := RunStats{
		FinalBalance: final,
		Profit:       final - cfg.InitialBalance,
		ReturnPct:    final/cfg.InitialBalance - 1,
		Days:         len(equity),
		Metrics:      summary,
		FinishedAt:   time.Now(),
	}
	return RunResult{Stats: stats, Equity: equity, Benchmark: bench}, nil
}

func unionDays(closes map[string]map[string]float64) []string {
	seen := make(map[string]bool)
	for _, byDay := range closes {
		for day := range byDay {
			seen[day] = true
		}
	}
	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

func firstCompleteDay(days []string, closes map[string]map[string]float64) int {
	for i, day := range days {
		complete := true
		for _, byDay := range closes {
			if _, ok := byDay[day]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return i
		}
	}
	return -1
}
