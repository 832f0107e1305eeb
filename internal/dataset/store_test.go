package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker(" aapl "))
	assert.Equal(t, "BRK-B", NormalizeTicker("brk.b"))
	assert.Equal(t, "", NormalizeTicker("  "))
}

func TestStoreInsertAndRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.InsertBars(ctx, "aapl", []Bar{
		{Day: "2024-01-02", Close: 185.5, Volume: 1000},
		{Day: "2024-01-03", Close: 184.2, Volume: 900},
		{Day: "2024-01-04", Close: 186.0, Volume: 1100},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	bars, err := store.RangeBars(ctx, "AAPL", "2024-01-03", "")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-03", bars[0].Day)
	assert.Equal(t, "2024-01-04", bars[1].Day)

	// 重复日期覆盖旧值。
	_, err = store.InsertBars(ctx, "AAPL", []Bar{{Day: "2024-01-03", Close: 190}})
	require.NoError(t, err)
	bars, err = store.RangeBars(ctx, "AAPL", "2024-01-03", "2024-01-03")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 190.0, bars[0].Close)
}

func TestStoreManifest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertBars(ctx, "msft", []Bar{
		{Day: "2024-01-02", Close: 370},
		{Day: "2024-02-01", Close: 400},
	})
	require.NoError(t, err)

	m, err := store.Manifest(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", m.Ticker)
	assert.Equal(t, "2024-01-02", m.MinDay)
	assert.Equal(t, "2024-02-01", m.MaxDay)
	assert.Equal(t, int64(2), m.Rows)
	assert.Greater(t, m.LastSyncAt, int64(0))
	assert.Equal(t, filepath.Join("MSFT", "daily.db"), filepath.Join(filepath.Base(filepath.Dir(m.Path)), filepath.Base(m.Path)))
}

func TestStoreLoadSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertBars(ctx, "spy", []Bar{
		{Day: "2024-01-02", Close: 470},
		{Day: "2024-01-03", Close: 472},
	})
	require.NoError(t, err)

	series, err := store.LoadSeries(ctx, "SPY", "", "")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 470.0, series.First().Value)
	assert.Equal(t, "2024-01-03", series.Last().Day.Format("2006-01-02"))
}

func TestStoreEmptyTickerRejected(t *testing.T) {
	store := newTestStore(t)
	_, err := store.InsertBars(context.Background(), "  ", []Bar{{Day: "2024-01-02", Close: 1}})
	assert.Error(t, err)
}
