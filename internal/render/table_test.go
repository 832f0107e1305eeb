package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihung1024/back-test/internal/metric"
)

func sampleRows() []metric.Row {
	beta := 0.98
	alpha := 0.021
	aapl := metric.Summary{
		CAGR: 0.1534, Volatility: 0.22, MDD: -0.18,
		Sharpe: 0.61, Sortino: 0.85,
		Beta: &beta, Alpha: &alpha, CustomScore: 1.23456,
	}.Row("AAPL", "")
	// 無基準對比：beta/alpha 為 null，夏普非有限。
	tsla := metric.Summary{
		CAGR: -0.043, Volatility: 0.55, MDD: -0.61,
		Sharpe: math.Inf(1),
	}.Row("TSLA", "(從 2021-03-01 開始)")
	return []metric.Row{aapl, tsla}
}

func TestTableRowsAreEntities(t *testing.T) {
	defs := metric.DefaultDefinitions()
	grid, err := Table(defs, metric.Formatters(defs), sampleRows(), Options{Orientation: RowsAreEntities})
	require.NoError(t, err)

	require.Len(t, grid.Header, len(defs)+1)
	assert.Equal(t, "Ticker", grid.Header[0])
	assert.Equal(t, "年化報酬率", grid.Header[1])
	assert.Equal(t, []string{"ticker", "cagr", "volatility", "mdd", "sharpe_ratio", "sortino_ratio", "beta", "alpha", "custom_score"}, grid.SortKeys)

	require.Len(t, grid.Rows, 2)
	aapl := grid.Rows[0]
	assert.Equal(t, "AAPL", aapl[0])
	assert.Equal(t, "15.34%", aapl[1])
	assert.Equal(t, "0.98", aapl[6])
	assert.Equal(t, "2.10%", aapl[7])
	assert.Equal(t, "1.2346", aapl[8])

	tsla := grid.Rows[1]
	assert.Equal(t, "TSLA(從 2021-03-01 開始)", tsla[0])
	assert.Equal(t, "-4.30%", tsla[1])
	assert.Equal(t, metric.NotAvailable, tsla[4], "非有限夏普應顯示 N/A")
	assert.Equal(t, metric.NotAvailable, tsla[6], "null beta 應顯示 N/A")
	assert.Equal(t, metric.NotAvailable, tsla[7])
}

func TestTableRowsAreMetrics(t *testing.T) {
	defs := metric.DefaultDefinitions()
	grid, err := Table(defs, metric.Formatters(defs), sampleRows(), Options{Orientation: RowsAreMetrics})
	require.NoError(t, err)

	assert.Equal(t, "指標", grid.Header[0])
	assert.Equal(t, []string{"指標", "AAPL", "TSLA(從 2021-03-01 開始)"}, grid.Header)
	assert.Equal(t, []string{"metric", "AAPL", "TSLA"}, grid.SortKeys)

	require.Len(t, grid.Rows, len(defs))
	assert.Equal(t, []string{"年化報酬率", "15.34%", "-4.30%"}, grid.Rows[0])
	assert.Equal(t, []string{"Beta", "0.98", "N/A"}, grid.Rows[5])
}

func TestTableReferenceAlwaysLast(t *testing.T) {
	defs := metric.DefaultDefinitions()
	ref := metric.Summary{CAGR: 0.10}.Row("SPY", "")
	grid, err := Table(defs, metric.Formatters(defs), sampleRows(), Options{
		Orientation: RowsAreEntities,
		Reference:   &ref,
	})
	require.NoError(t, err)
	require.Len(t, grid.Rows, 3)
	assert.Equal(t, "SPY", grid.Rows[2][0])

	grid, err = Table(defs, metric.Formatters(defs), sampleRows(), Options{
		Orientation: RowsAreMetrics,
		Reference:   &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPY", grid.Header[len(grid.Header)-1])
}

func TestTableUndefinedCellsUsePlaceholder(t *testing.T) {
	defs := metric.DefaultDefinitions()
	// 出错条目没有任何指标值，全部格子应为占位符且不触发 formatter。
	poison := map[string]metric.Formatter{}
	for _, d := range defs {
		poison[d.Key] = func(metric.Value) string {
			t.Fatal("undefined 值不應調用 formatter")
			return ""
		}
	}
	rows := []metric.Row{{Label: "GONE", Note: ""}}
	grid, err := Table(defs, poison, rows, Options{Orientation: RowsAreEntities})
	require.NoError(t, err)
	for _, cell := range grid.Rows[0][1:] {
		assert.Equal(t, metric.Placeholder, cell)
	}
}

func TestTableMissingFormatterFails(t *testing.T) {
	defs := metric.DefaultDefinitions()
	formatters := metric.Formatters(defs)
	delete(formatters, metric.KeyBeta)
	_, err := Table(defs, formatters, sampleRows(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beta")
}

func TestTableRectangularAndOrderPreserving(t *testing.T) {
	defs := metric.DefaultDefinitions()
	rows := []metric.Row{
		metric.Summary{}.Row("ZZZ", ""),
		metric.Summary{}.Row("AAA", ""),
		metric.Summary{}.Row("MMM", ""),
	}
	grid, err := Table(defs, metric.Formatters(defs), rows, Options{Orientation: RowsAreEntities})
	require.NoError(t, err)

	// 不重排输入顺序。
	assert.Equal(t, "ZZZ", grid.Rows[0][0])
	assert.Equal(t, "AAA", grid.Rows[1][0])
	assert.Equal(t, "MMM", grid.Rows[2][0])
	for _, row := range grid.Rows {
		assert.Len(t, row, len(grid.Header))
	}
	assert.Len(t, grid.SortKeys, len(grid.Header))
}

func TestTableIdempotent(t *testing.T) {
	defs := metric.DefaultDefinitions()
	formatters := metric.Formatters(defs)
	rows := sampleRows()
	first, err := Table(defs, formatters, rows, Options{Orientation: RowsAreEntities})
	require.NoError(t, err)
	second, err := Table(defs, formatters, rows, Options{Orientation: RowsAreEntities})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTableCornerOverride(t *testing.T) {
	defs := metric.DefaultDefinitions()
	grid, err := Table(defs, metric.Formatters(defs), sampleRows(), Options{
		Orientation: RowsAreEntities,
		CornerLabel: "股票",
	})
	require.NoError(t, err)
	assert.Equal(t, "股票", grid.Header[0])
}

func TestTableEmptyDefinitionsFails(t *testing.T) {
	_, err := Table(nil, nil, sampleRows(), Options{})
	assert.Error(t, err)
}
