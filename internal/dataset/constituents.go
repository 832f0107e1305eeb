package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chihung1024/back-test/internal/logger"
)

// 默认的 Russell 1000 持仓 CSV（iShares IWB ETF 官网导出）。
const defaultConstituentsURL = "https://www.ishares.com/us/products/239707/ishares-russell-1000-etf/1467271812596.ajax?fileType=csv&fileName=IWB_holdings&dataType=fund"

// fallbackTickers 是爬取失败时的静态备援列表。
var fallbackTickers = []string{
	"AAPL", "MSFT", "AMZN", "NVDA", "GOOGL", "GOOG", "TSLA", "META",
	"BRK-B", "UNH", "JPM", "JNJ", "V", "PG", "XOM", "HD", "CVX", "MA",
	"ABBV", "LLY", "PEP", "COST", "AVGO", "MRK", "BAC", "KO",
}

// ConstituentsFetcher 获取成分股列表。
type ConstituentsFetcher struct {
	url    string
	client *http.Client
}

func NewConstituentsFetcher(url string) *ConstituentsFetcher {
	if url == "" {
		url = defaultConstituentsURL
	}
	return &ConstituentsFetcher{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch 下载持仓 CSV 并抽出股票代码；失败时返回静态备援列表。
func (f *ConstituentsFetcher) Fetch(ctx context.Context) []string {
	tickers, err := f.fetchRemote(ctx)
	if err != nil {
		logger.Errorf("成分股獲取失敗，使用備援列表: %v", err)
		return append([]string(nil), fallbackTickers...)
	}
	logger.Infof("成分股獲取成功，共 %d 檔", len(tickers))
	return tickers
}

func (f *ConstituentsFetcher) fetchRemote(ctx context.Context) ([]string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	req.Header.Set("User-Agent", politeUserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("持倉 CSV 返回狀態碼 %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseHoldingsCSV(string(body))
}

// ParseHoldingsCSV 解析 iShares 持仓 CSV。文件前几行是元数据，
// 真正的表头从 "Ticker" 开始；只保留 Asset Class 为 Equity 的行，
// 并把代码里的点号换成连字符。
func ParseHoldingsCSV(content string) ([]string, error) {
	idx := strings.Index(content, "Ticker")
	if idx < 0 {
		return nil, fmt.Errorf("CSV 不含 Ticker 表頭")
	}
	reader := csv.NewReader(strings.NewReader(content[idx:]))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("持倉 CSV 解析失敗: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("持倉 CSV 無數據行")
	}
	header := records[0]
	tickerIdx := columnIndex(header, "Ticker")
	classIdx := columnIndex(header, "Asset Class")
	if tickerIdx < 0 {
		return nil, fmt.Errorf("持倉 CSV 缺少 Ticker 欄位")
	}

	seen := make(map[string]bool)
	var out []string
	for _, rec := range records[1:] {
		if tickerIdx >= len(rec) {
			continue
		}
		if classIdx >= 0 && classIdx < len(rec) && !strings.EqualFold(strings.TrimSpace(rec[classIdx]), "Equity") {
			continue
		}
		ticker := NormalizeTicker(rec[tickerIdx])
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		out = append(out, ticker)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("持倉 CSV 無有效股票代碼")
	}
	return out, nil
}
