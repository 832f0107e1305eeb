// Package scan 对一组股票在指定区间计算绩效指标，对应掃描視圖。
package scan

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/render"
)

// Request 描述一次掃描：股票列表、可选基准与月份区间。
type Request struct {
	Tickers    []string     `json:"tickers"`
	Benchmark  string       `json:"benchmark"`
	StartYear  int          `json:"startYear"`
	StartMonth int          `json:"startMonth"`
	EndYear    int          `json:"endYear"`
	EndMonth   int          `json:"endMonth"`
	Filter     *TrendFilter `json:"filter,omitempty"`
}

// TrendFilter 是可选的技术面过滤器：收盘价需高于 N 日均线，
// 且 RSI 不超过上限（0 表示不启用对应条件）。
type TrendFilter struct {
	SMAWindow int     `json:"sma_window"`
	RSIWindow int     `json:"rsi_window"`
	RSIMax    float64 `json:"rsi_max"`
}

// Result 是单一股票的掃描结果。出错时 Summary 为 nil、Error 非空，
// 渲染层会把所有指标格显示为占位符。
type Result struct {
	Ticker   string          `json:"ticker"`
	Summary  *metric.Summary `json:"metrics,omitempty"`
	Note     string          `json:"note,omitempty"`
	Error    string          `json:"error,omitempty"`
	Filtered bool            `json:"filtered,omitempty"`
}

// Outcome 汇总一次掃描：逐股结果与可选的基准参照行。
type Outcome struct {
	Results   []Result
	Benchmark *metric.Row
}

// Service 执行掃描。
type Service struct {
	store      *dataset.Store
	maxTickers int
}

type ServiceOption func(*Service)

// WithMaxTickers 限制单次掃描的股票数量上限（0 表示不限制）。
func WithMaxTickers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxTickers = n
		}
	}
}

func NewService(store *dataset.Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store 不能為空")
	}
	s := &Service{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Scan 按请求区间逐股计算指标。单股失败只记录错误条目，不会中断整体。
func (s *Service) Scan(ctx context.Context, req Request) (Outcome, error) {
	if len(req.Tickers) == 0 {
		return Outcome{}, fmt.Errorf("股票代碼列表不可為空")
	}
	if s.maxTickers > 0 && len(req.Tickers) > s.maxTickers {
		return Outcome{}, fmt.Errorf("股票數量 %d 超過上限 %d", len(req.Tickers), s.maxTickers)
	}
	start, end, err := MonthRange(req.StartYear, req.StartMonth, req.EndYear, req.EndMonth)
	if err != nil {
		return Outcome{}, err
	}

	var benchSeries metric.Series
	var benchRow *metric.Row
	if req.Benchmark != "" {
		benchTicker := dataset.NormalizeTicker(req.Benchmark)
		series, err := s.store.LoadSeries(ctx, benchTicker, start, end)
		if err != nil {
			logger.Warnf("基準 %s 載入失敗，略過基準對比: %v", benchTicker, err)
		} else if len(series) > 0 {
			benchSeries = series
			summary := metric.Compute(series, nil, metric.DefaultRiskFreeRate)
			row := summary.Row(benchTicker, completenessNote(series, start))
			benchRow = &row
		}
	}

	results := make([]Result, 0, len(req.Tickers))
	for _, raw := range req.Tickers {
		ticker := dataset.NormalizeTicker(raw)
		results = append(results, s.scanOne(ctx, ticker, start, benchSeries, req.Filter, end))
	}
	return Outcome{Results: results, Benchmark: benchRow}, nil
}

func (s *Service) scanOne(ctx context.Context, ticker, start string, bench metric.Series, filter *TrendFilter, end string) Result {
	series, err := s.store.LoadSeries(ctx, ticker, start, end)
	if err != nil {
		logger.Errorf("處理 %s 時發生錯誤: %v", ticker, err)
		return Result{Ticker: ticker, Error: "計算錯誤"}
	}
	if len(series) == 0 {
		return Result{Ticker: ticker, Error: "找不到數據"}
	}
	if filter != nil {
		pass, err := passesTrendFilter(series, *filter)
		if err != nil {
			logger.Warnf("%s 技術面過濾失敗，保留該股: %v", ticker, err)
		} else if !pass {
			return Result{Ticker: ticker, Filtered: true}
		}
	}
	summary := metric.Compute(series, bench, metric.DefaultRiskFreeRate)
	return Result{
		Ticker:  ticker,
		Summary: &summary,
		Note:    completenessNote(series, start),
	}
}

// passesTrendFilter 用收盘序列跑 SMA/RSI 条件。窗口大于样本时视为不过滤。
func passesTrendFilter(series metric.Series, f TrendFilter) (bool, error) {
	closes := make([]float64, len(series))
	for i, p := range series {
		closes[i] = p.Value
	}
	if f.SMAWindow > 1 {
		if len(closes) < f.SMAWindow {
			return true, fmt.Errorf("樣本 %d 少於 SMA 窗口 %d", len(closes), f.SMAWindow)
		}
		sma := talib.Sma(closes, f.SMAWindow)
		if closes[len(closes)-1] < sma[len(sma)-1] {
			return false, nil
		}
	}
	if f.RSIWindow > 1 && f.RSIMax > 0 {
		if len(closes) <= f.RSIWindow {
			return true, fmt.Errorf("樣本 %d 不足 RSI 窗口 %d", len(closes), f.RSIWindow)
		}
		rsi := talib.Rsi(closes, f.RSIWindow)
		if rsi[len(rsi)-1] > f.RSIMax {
			return false, nil
		}
	}
	return true, nil
}

// completenessNote 当数据起点晚于请求起点时返回脚注，否则空串。
func completenessNote(series metric.Series, requestedStart string) string {
	if len(series) == 0 {
		return ""
	}
	first := series.First().Day.Format("2006-01-02")
	if first > requestedStart {
		return fmt.Sprintf("(從 %s 開始)", first)
	}
	return ""
}

// MonthRange 把年月区间换算成 [月初, 月末] 的日期串。
func MonthRange(startYear, startMonth, endYear, endMonth int) (string, string, error) {
	if startYear <= 0 || startMonth < 1 || startMonth > 12 {
		return "", "", fmt.Errorf("起始年月不合法: %d-%d", startYear, startMonth)
	}
	if endYear <= 0 || endMonth < 1 || endMonth > 12 {
		return "", "", fmt.Errorf("結束年月不合法: %d-%d", endYear, endMonth)
	}
	start := time.Date(startYear, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	// 下月一日减一天即当月最后一天。
	end := time.Date(endYear, time.Month(endMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	if end.Before(start) {
		return "", "", fmt.Errorf("結束年月早於起始年月")
	}
	return start.Format("2006-01-02"), end.Format("2006-01-02"), nil
}

// Rows 把掃描结果转成渲染数据行（跳过被过滤的股票，保留出错条目）。
func (o Outcome) Rows() []metric.Row {
	rows := make([]metric.Row, 0, len(o.Results))
	for _, r := range o.Results {
		if r.Filtered {
			continue
		}
		if r.Summary == nil {
			rows = append(rows, metric.Row{Label: r.Ticker, Note: r.Note})
			continue
		}
		rows = append(rows, r.Summary.Row(r.Ticker, r.Note))
	}
	return rows
}

// Grid 把掃描结果渲染为表格，基准（若有）排在最后。
func (o Outcome) Grid(defs []metric.Definition, formatters map[string]metric.Formatter, orientation render.Orientation) (render.Grid, error) {
	return render.Table(defs, formatters, o.Rows(), render.Options{
		Orientation: orientation,
		Reference:   o.Benchmark,
	})
}
