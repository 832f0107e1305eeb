package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/render"
)

func newScanFixture(t *testing.T) (*Service, *dataset.Store) {
	t.Helper()
	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := NewService(store)
	require.NoError(t, err)
	return svc, store
}

func seedBars(t *testing.T, store *dataset.Store, ticker string, days []string, closes []float64) {
	t.Helper()
	require.Equal(t, len(days), len(closes))
	bars := make([]dataset.Bar, len(days))
	for i := range days {
		bars[i] = dataset.Bar{Day: days[i], Close: closes[i]}
	}
	_, err := store.InsertBars(context.Background(), ticker, bars)
	require.NoError(t, err)
}

func TestMonthRange(t *testing.T) {
	start, end, err := MonthRange(2024, 1, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start)
	assert.Equal(t, "2024-02-29", end)

	_, _, err = MonthRange(2024, 13, 2024, 1)
	assert.Error(t, err)

	_, _, err = MonthRange(2024, 6, 2024, 1)
	assert.Error(t, err)
}

func TestScanComputesMetricsPerTicker(t *testing.T) {
	svc, store := newScanFixture(t)
	days := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"}
	seedBars(t, store, "AAPL", days, []float64{100, 102, 101, 105, 104})
	seedBars(t, store, "SPY", days, []float64{470, 471, 469, 474, 473})

	outcome, err := svc.Scan(context.Background(), Request{
		Tickers:    []string{"aapl", "GONE"},
		Benchmark:  "spy",
		StartYear:  2024,
		StartMonth: 1,
		EndYear:    2024,
		EndMonth:   1,
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)

	aapl := outcome.Results[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	require.NotNil(t, aapl.Summary)
	assert.Empty(t, aapl.Error)
	assert.NotNil(t, aapl.Summary.Beta)
	// 数据从 01-02 开始晚于请求的 01-01，应有脚注。
	assert.Equal(t, "(從 2024-01-02 開始)", aapl.Note)

	gone := outcome.Results[1]
	assert.Equal(t, "GONE", gone.Ticker)
	assert.Nil(t, gone.Summary)
	assert.Equal(t, "找不到數據", gone.Error)

	require.NotNil(t, outcome.Benchmark)
	assert.Equal(t, "SPY", outcome.Benchmark.Label)
}

func TestScanGridPlacesErrorRowsAsPlaceholders(t *testing.T) {
	svc, store := newScanFixture(t)
	days := []string{"2024-01-02", "2024-01-03", "2024-01-04"}
	seedBars(t, store, "MSFT", days, []float64{370, 372, 371})

	outcome, err := svc.Scan(context.Background(), Request{
		Tickers:    []string{"MSFT", "GONE"},
		StartYear:  2024,
		StartMonth: 1,
		EndYear:    2024,
		EndMonth:   1,
	})
	require.NoError(t, err)

	defs := metric.DefaultDefinitions()
	grid, err := outcome.Grid(defs, metric.Formatters(defs), render.RowsAreEntities)
	require.NoError(t, err)
	require.Len(t, grid.Rows, 2)

	gone := grid.Rows[1]
	assert.Equal(t, "GONE", gone[0])
	for _, cell := range gone[1:] {
		assert.Equal(t, metric.Placeholder, cell)
	}
}

func TestScanTrendFilterMarksFiltered(t *testing.T) {
	svc, store := newScanFixture(t)
	// 收盘跌破 3 日均线。
	days := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"}
	seedBars(t, store, "TSLA", days, []float64{200, 198, 195, 190, 180})

	outcome, err := svc.Scan(context.Background(), Request{
		Tickers:    []string{"TSLA"},
		StartYear:  2024,
		StartMonth: 1,
		EndYear:    2024,
		EndMonth:   1,
		Filter:     &TrendFilter{SMAWindow: 3},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.True(t, outcome.Results[0].Filtered)

	// 被过滤的股票不进入表格。
	defs := metric.DefaultDefinitions()
	grid, err := outcome.Grid(defs, metric.Formatters(defs), render.RowsAreEntities)
	require.NoError(t, err)
	assert.Empty(t, grid.Rows)
}

func TestScanRejectsEmptyTickers(t *testing.T) {
	svc, _ := newScanFixture(t)
	_, err := svc.Scan(context.Background(), Request{StartYear: 2024, StartMonth: 1, EndYear: 2024, EndMonth: 1})
	assert.Error(t, err)
}

func TestScanMaxTickersCap(t *testing.T) {
	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := NewService(store, WithMaxTickers(2))
	require.NoError(t, err)

	req := Request{
		Tickers:    []string{"AAPL", "MSFT", "GOOG"},
		StartYear:  2024,
		StartMonth: 1,
		EndYear:    2024,
		EndMonth:   1,
	}
	_, err = svc.Scan(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "超過上限")

	// 上限以内正常执行。
	req.Tickers = []string{"AAPL", "MSFT"}
	outcome, err := svc.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
}
