package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StooqSource 基于 stooq.com 的 CSV 日线接口，作为 Yahoo 的备援。
// 注意：stooq 的美股数据未做除权除息还原。
type StooqSource struct {
	baseURL string
	suffix  string
	client  *http.Client
}

func NewStooqSource(base string, timeout time.Duration) *StooqSource {
	if base == "" {
		base = "https://stooq.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StooqSource{
		baseURL: base,
		suffix:  ".us",
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *StooqSource) Name() string { return "stooq" }

func (s *StooqSource) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	ticker := NormalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker 不能為空")
	}
	u, _ := url.Parse(s.baseURL)
	u.Path = "/q/d/l/"
	q := u.Query()
	q.Set("s", strings.ToLower(ticker)+s.suffix)
	q.Set("i", "d")
	if req.Start != "" {
		q.Set("d1", compactDay(req.Start))
	}
	if req.End != "" {
		q.Set("d2", compactDay(req.End))
	}
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	httpReq.Header.Set("User-Agent", politeUserAgent)
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stooq 返回狀態碼 %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stooq CSV 解析失敗: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("stooq 無數據: %s", ticker)
	}
	header := records[0]
	dayIdx, closeIdx, volIdx := columnIndex(header, "Date"), columnIndex(header, "Close"), columnIndex(header, "Volume")
	if dayIdx < 0 || closeIdx < 0 {
		return nil, fmt.Errorf("stooq CSV 缺少 Date/Close 欄位")
	}

	out := make([]Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		if dayIdx >= len(rec) || closeIdx >= len(rec) {
			continue
		}
		closeVal, err := strconv.ParseFloat(rec[closeIdx], 64)
		if err != nil {
			continue
		}
		bar := Bar{Day: rec[dayIdx], Close: closeVal}
		if volIdx >= 0 && volIdx < len(rec) {
			if vol, err := strconv.ParseFloat(rec[volIdx], 64); err == nil {
				bar.Volume = vol
			}
		}
		out = append(out, bar)
	}
	return out, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func compactDay(day string) string {
	return strings.ReplaceAll(day, "-", "")
}
