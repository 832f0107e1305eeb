package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yahooChartJSON = `{
  "chart": {
    "result": [{
      "timestamp": [1704153600, 1704240000, 1704326400],
      "indicators": {
        "quote": [{"close": [185.0, 184.0, 186.0], "volume": [1000, null, 1100]}],
        "adjclose": [{"adjclose": [184.5, null, 185.5]}]
      }
    }],
    "error": null
  }
}`

func TestYahooSourceFetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		w.Write([]byte(yahooChartJSON))
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL, 0)
	bars, err := src.Fetch(context.Background(), FetchRequest{Ticker: "aapl", Start: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)

	// 第二根 adjclose 为 null，应被跳过。
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Day)
	assert.Equal(t, 184.5, bars[0].Close)
	assert.Equal(t, 1000.0, bars[0].Volume)
	assert.Equal(t, 185.5, bars[1].Close)
}

func TestYahooSourceErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL, 0)
	_, err := src.Fetch(context.Background(), FetchRequest{Ticker: "GONE", Start: "2024-01-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestStooqSourceFetch(t *testing.T) {
	csv := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-02,184,186,183,185.5,1000\n" +
		"2024-01-03,185,186,182,184.2,900\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aapl.us", r.URL.Query().Get("s"))
		assert.Equal(t, "20240101", r.URL.Query().Get("d1"))
		w.Write([]byte(csv))
	}))
	defer srv.Close()

	src := NewStooqSource(srv.URL, 0)
	bars, err := src.Fetch(context.Background(), FetchRequest{Ticker: "AAPL", Start: "2024-01-01", End: "2024-02-01"})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 185.5, bars[0].Close)
	assert.Equal(t, 900.0, bars[1].Volume)
}

func TestStooqSourceNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("No data\n"))
	}))
	defer srv.Close()

	src := NewStooqSource(srv.URL, 0)
	_, err := src.Fetch(context.Background(), FetchRequest{Ticker: "GONE", Start: "2024-01-01"})
	assert.Error(t, err)
}
