package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/chihung1024/back-test/internal/metric"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorBenchmark     = "#3b82f6"

	chartWidthPx  = 1280
	chartHeightPx = 560
)

// EquityChartInput 描述一次净值曲线渲染。
type EquityChartInput struct {
	Title     string
	Subtitle  string
	Equity    metric.Series
	Benchmark metric.Series
}

// EquityChartHTML 用 go-echarts 产出净值曲线页面。
func EquityChartHTML(input EquityChartInput) ([]byte, error) {
	if len(input.Equity) == 0 {
		return nil, fmt.Errorf("淨值序列為空，無法繪圖")
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         input.Title,
			Subtitle:      input.Subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)

	line.SetXAxis(seriesDays(input.Equity))
	line.AddSeries("組合淨值", seriesLineData(input.Equity))
	if len(input.Benchmark) > 0 {
		bench := alignBenchmark(input.Equity, input.Benchmark)
		line.AddSeries("基準", bench,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorBenchmark}),
		)
	}
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EquityChartPNG 把净值曲线页面截为 PNG（需要本机 headless Chrome）。
func EquityChartPNG(ctx context.Context, input EquityChartInput) ([]byte, error) {
	if err := ensureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	html, err := EquityChartHTML(input)
	if err != nil {
		return nil, err
	}
	return renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx+80)
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func ensureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1200 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks); err != nil {
		return nil, err
	}
	return screenshot, nil
}

func seriesDays(s metric.Series) []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Day.Format("2006-01-02")
	}
	return out
}

func seriesLineData(s metric.Series) []opts.LineData {
	out := make([]opts.LineData, len(s))
	for i, p := range s {
		out[i] = opts.LineData{Value: round(p.Value, 2)}
	}
	return out
}

// alignBenchmark 把基准序列缩放到与组合同一起点并按组合日期取值，
// 缺日沿用前值，便于同图对比。
func alignBenchmark(equity, benchmark metric.Series) []opts.LineData {
	byDay := make(map[string]float64, len(benchmark))
	for _, p := range benchmark {
		byDay[p.Day.Format("2006-01-02")] = p.Value
	}
	scale := 1.0
	if len(benchmark) > 0 && benchmark[0].Value > 0 && len(equity) > 0 {
		scale = equity[0].Value / benchmark[0].Value
	}
	out := make([]opts.LineData, len(equity))
	last := 0.0
	if len(benchmark) > 0 {
		last = benchmark[0].Value
	}
	for i, p := range equity {
		if v, ok := byDay[p.Day.Format("2006-01-02")]; ok {
			last = v
		}
		out[i] = opts.LineData{Value: round(last*scale, 2)}
	}
	return out
}

func round(v float64, digits int) float64 {
	pow := math.Pow10(digits)
	return math.Round(v*pow) / pow
}
