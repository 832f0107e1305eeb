package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihung1024/back-test/internal/dataset"
)

type recordingSource struct {
	mu      sync.Mutex
	tickers []string
}

func (r *recordingSource) Name() string { return "fake" }

func (r *recordingSource) Fetch(ctx context.Context, req dataset.FetchRequest) ([]dataset.Bar, error) {
	r.mu.Lock()
	r.tickers = append(r.tickers, req.Ticker)
	r.mu.Unlock()
	return []dataset.Bar{{Day: "2024-01-02", Close: 100}}, nil
}

func TestRefreshAllFetchesEveryConstituent(t *testing.T) {
	csv := "Ticker,Name,Asset Class\nAAPL,APPLE,Equity\nMSFT,MICROSOFT,Equity\nBRK.B,BERKSHIRE,Equity\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csv))
	}))
	defer srv.Close()

	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	source := &recordingSource{}
	svc, err := dataset.NewService(dataset.ServiceConfig{
		Store:           store,
		Sources:         []dataset.BarSource{source},
		RateLimitPerMin: 6000,
	})
	require.NoError(t, err)

	upd, err := New(dataset.NewConstituentsFetcher(srv.URL), svc, Config{
		BatchSize:   2,
		Concurrency: 2,
	})
	require.NoError(t, err)
	require.NoError(t, upd.RefreshAll(context.Background()))

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "BRK-B"}, source.tickers)
}

func TestNewValidation(t *testing.T) {
	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	svc, err := dataset.NewService(dataset.ServiceConfig{
		Store:   store,
		Sources: []dataset.BarSource{&recordingSource{}},
	})
	require.NoError(t, err)

	_, err = New(nil, svc, Config{})
	assert.Error(t, err)
	_, err = New(dataset.NewConstituentsFetcher(""), nil, Config{})
	assert.Error(t, err)
}

func TestStartRejectsBadCron(t *testing.T) {
	store, err := dataset.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	svc, err := dataset.NewService(dataset.ServiceConfig{
		Store:   store,
		Sources: []dataset.BarSource{&recordingSource{}},
	})
	require.NoError(t, err)

	upd, err := New(dataset.NewConstituentsFetcher(""), svc, Config{CronSpec: "not a cron"})
	require.NoError(t, err)
	assert.Error(t, upd.Start(context.Background()))
}
