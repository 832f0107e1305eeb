package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// YahooSource 基于 Yahoo Finance v8 chart API 的日线数据源（已复权收盘价）。
type YahooSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooSource(base string, timeout time.Duration) *YahooSource {
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YahooSource{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

func (y *YahooSource) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	ticker := NormalizeTicker(req.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker 不能為空")
	}
	start, err := parseDay(req.Start)
	if err != nil {
		return nil, fmt.Errorf("start 格式錯誤: %w", err)
	}
	end := time.Now().UTC()
	if req.End != "" {
		end, err = parseDay(req.End)
		if err != nil {
			return nil, fmt.Errorf("end 格式錯誤: %w", err)
		}
		// chart API 的 period2 为开区间，补一天以包含 end 当日。
		end = end.AddDate(0, 0, 1)
	}

	u, _ := url.Parse(y.baseURL)
	u.Path = "/v8/finance/chart/" + ticker
	q := u.Query()
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "capitalGain|div|split")
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	httpReq.Header.Set("User-Agent", politeUserAgent)
	resp, err := y.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo 返回狀態碼 %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	root := gjson.GetBytes(body, "chart.result.0")
	if !root.Exists() {
		if msg := gjson.GetBytes(body, "chart.error.description"); msg.Exists() {
			return nil, fmt.Errorf("yahoo: %s", msg.String())
		}
		return nil, fmt.Errorf("yahoo 響應缺少 chart.result")
	}
	timestamps := root.Get("timestamp").Array()
	closes := root.Get("indicators.adjclose.0.adjclose").Array()
	if len(closes) == 0 {
		// 部分标的没有 adjclose，退回普通收盘价。
		closes = root.Get("indicators.quote.0.close").Array()
	}
	volumes := root.Get("indicators.quote.0.volume").Array()

	out := make([]Bar, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) {
			break
		}
		c := closes[i]
		if c.Type == gjson.Null {
			continue
		}
		bar := Bar{
			Day:   time.Unix(ts.Int(), 0).UTC().Format("2006-01-02"),
			Close: c.Float(),
		}
		if i < len(volumes) && volumes[i].Type != gjson.Null {
			bar.Volume = volumes[i].Float()
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

const politeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
