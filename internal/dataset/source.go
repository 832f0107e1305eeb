package dataset

import "context"

// FetchRequest 描述一次远端日线请求。Start/End 为 YYYY-MM-DD（End 可空）。
type FetchRequest struct {
	Ticker string
	Start  string
	End    string
}

// BarSource 统一不同行情数据源的拉取行为。
type BarSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Bar, error)
	Name() string
}
