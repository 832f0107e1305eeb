package dataset

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name  string
	bars  []Bar
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func newFetchService(t *testing.T, sources ...BarSource) (*Service, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := NewService(ServiceConfig{
		Store:           store,
		Sources:         sources,
		RateLimitPerMin: 6000,
		MaxConcurrent:   2,
	})
	require.NoError(t, err)
	return svc, store
}

func TestFetchNowFallsBackToSecondSource(t *testing.T) {
	broken := &fakeSource{name: "yahoo", err: fmt.Errorf("限速")}
	backup := &fakeSource{name: "stooq", bars: []Bar{
		{Day: "2024-01-02", Close: 185},
		{Day: "2024-01-03", Close: 186},
	}}
	svc, store := newFetchService(t, broken, backup)

	rows, source, err := svc.FetchNow(context.Background(), FetchParams{Ticker: "aapl", Start: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, "stooq", source)
	assert.Equal(t, 1, broken.calls)

	bars, err := store.RangeBars(context.Background(), "AAPL", "", "")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestFetchNowAllSourcesFail(t *testing.T) {
	svc, _ := newFetchService(t,
		&fakeSource{name: "yahoo", err: fmt.Errorf("boom")},
		&fakeSource{name: "stooq"},
	)
	_, _, err := svc.FetchNow(context.Background(), FetchParams{Ticker: "AAPL", Start: "2024-01-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "拉取 AAPL 失敗")
}

func TestSubmitFetchRunsAsync(t *testing.T) {
	src := &fakeSource{name: "yahoo", bars: []Bar{{Day: "2024-01-02", Close: 185}}}
	svc, _ := newFetchService(t, src)

	job, err := svc.SubmitFetch(FetchParams{Ticker: "msft", Start: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", job.Ticker)
	assert.Equal(t, JobStatusPending, job.Status)

	require.Eventually(t, func() bool {
		snap, ok := svc.JobSnapshot(job.ID)
		return ok && snap.Status == JobStatusDone
	}, 3*time.Second, 10*time.Millisecond)

	snap, ok := svc.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, 1, snap.Rows)
	assert.Equal(t, "yahoo", snap.Source)
}

func TestSubmitFetchValidation(t *testing.T) {
	svc, _ := newFetchService(t, &fakeSource{name: "yahoo"})
	_, err := svc.SubmitFetch(FetchParams{Ticker: "", Start: "2024-01-01"})
	assert.Error(t, err)
	_, err = svc.SubmitFetch(FetchParams{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestJobsSnapshotNewestFirst(t *testing.T) {
	src := &fakeSource{name: "yahoo", bars: []Bar{{Day: "2024-01-02", Close: 1}}}
	svc, _ := newFetchService(t, src)

	first, err := svc.SubmitFetch(FetchParams{Ticker: "AAA", Start: "2024-01-01"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := svc.SubmitFetch(FetchParams{Ticker: "BBB", Start: "2024-01-01"})
	require.NoError(t, err)

	jobs := svc.JobsSnapshot()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	require.Eventually(t, func() bool {
		for _, id := range []string{first.ID, second.ID} {
			snap, ok := svc.JobSnapshot(id)
			if !ok || (snap.Status != JobStatusDone && snap.Status != JobStatusFailed) {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
}
