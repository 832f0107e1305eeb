package metric

import (
	"math"
	"time"
)

// 绩效计算常量，与数据口径保持一致（美股日线）。
const (
	DefaultRiskFreeRate = 0.0
	TradingDaysPerYear  = 252
	DaysPerYear         = 365.25
	epsilon             = 1e-9
)

// Point 是净值曲线上的一个采样点。
type Point struct {
	Day   time.Time `json:"day"`
	Value float64   `json:"value"`
}

// Series 是按日期升序排列的净值序列。
type Series []Point

// First 返回首个采样点；空序列返回零值。
func (s Series) First() Point {
	if len(s) == 0 {
		return Point{}
	}
	return s[0]
}

// Last 返回最后一个采样点；空序列返回零值。
func (s Series) Last() Point {
	if len(s) == 0 {
		return Point{}
	}
	return s[len(s)-1]
}

// Summary 汇总一条净值序列的全部绩效指标。
// Beta/Alpha 为指针：nil 表示统计上无定义（无基准或回归样本不足），
// 与「未计算」语义不同，序列化后对应 null。
type Summary struct {
	CAGR        float64  `json:"cagr"`
	MDD         float64  `json:"mdd"`
	Volatility  float64  `json:"volatility"`
	Sharpe      float64  `json:"sharpe_ratio"`
	Sortino     float64  `json:"sortino_ratio"`
	Beta        *float64 `json:"beta"`
	Alpha       *float64 `json:"alpha"`
	CustomScore float64  `json:"custom_score"`
}

// Row 将汇总结果转换为渲染用数据行；Beta/Alpha 的 nil 映射为 null 值。
func (m Summary) Row(label, note string) Row {
	values := map[string]Value{
		KeyCAGR:        Num(m.CAGR),
		KeyVolatility:  Num(m.Volatility),
		KeyMDD:         Num(m.MDD),
		KeySharpe:      Num(m.Sharpe),
		KeySortino:     Num(m.Sortino),
		KeyBeta:        Null(),
		KeyAlpha:       Null(),
		KeyCustomScore: Num(m.CustomScore),
	}
	if m.Beta != nil {
		values[KeyBeta] = Num(*m.Beta)
	}
	if m.Alpha != nil {
		values[KeyAlpha] = Num(*m.Alpha)
	}
	return Row{Label: label, Note: note, Values: values}
}

// Compute 计算净值序列的绩效指标。
// benchmark 可为 nil/空：此时 Beta/Alpha 为 nil。
// 退化输入（样本不足、起始净值为 0）按约定返回保底值而不是报错。
func Compute(history, benchmark Series, riskFree float64) Summary {
	if len(history) < 2 {
		return Summary{}
	}
	startValue := history.First().Value
	endValue := history.Last().Value
	if startValue < epsilon {
		return Summary{MDD: -1}
	}

	years := history.Last().Day.Sub(history.First().Day).Hours() / 24 / DaysPerYear
	cagr := 0.0
	if years > 0 {
		cagr = math.Pow(endValue/startValue, 1/years) - 1
	}

	mdd := maxDrawdown(history)

	returns := dailyReturns(history)
	if len(returns) < 2 {
		return Summary{CAGR: cagr, MDD: mdd}
	}

	annualStd := sampleStd(returns) * math.Sqrt(TradingDaysPerYear)
	excess := cagr - riskFree
	sharpe := excess / (annualStd + epsilon)

	dailyRf := math.Pow(1+riskFree, 1.0/TradingDaysPerYear) - 1
	downside := 0.0
	for _, r := range returns {
		d := r - dailyRf
		if d > 0 {
			d = 0
		}
		downside += d * d
	}
	downsideStd := math.Sqrt(downside/float64(len(returns))) * math.Sqrt(TradingDaysPerYear)
	sortino := 0.0
	if downsideStd > epsilon {
		sortino = excess / downsideStd
	}

	var beta, alpha *float64
	if len(benchmark) > 1 {
		beta, alpha = regress(history, benchmark, returns, years, cagr, riskFree)
	}

	// 清理非有限值：比率归零，回归项归 null。
	if !isFinite(sharpe) {
		sharpe = 0
	}
	if !isFinite(sortino) {
		sortino = 0
	}
	if beta != nil && !isFinite(*beta) {
		beta = nil
	}
	if alpha != nil && !isFinite(*alpha) {
		alpha = nil
	}

	alphaVal := 0.0
	if alpha != nil {
		alphaVal = *alpha
	}
	customScore := sortino * alphaVal * (1 + mdd)

	return Summary{
		CAGR:        cagr,
		MDD:         mdd,
		Volatility:  annualStd,
		Sharpe:      sharpe,
		Sortino:     sortino,
		Beta:        beta,
		Alpha:       alpha,
		CustomScore: customScore,
	}
}

func maxDrawdown(s Series) float64 {
	peak := math.Inf(-1)
	mdd := 0.0
	for _, p := range s {
		if p.Value > peak {
			peak = p.Value
		}
		dd := (p.Value - peak) / (peak + epsilon)
		if dd < mdd {
			mdd = dd
		}
	}
	return mdd
}

func dailyReturns(s Series) []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev := s[i-1].Value
		if prev == 0 {
			continue
		}
		out = append(out, s[i].Value/prev-1)
	}
	return out
}

// sampleStd 样本标准差（ddof=1）。
func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}

// regress 用基准日收益对组合日收益做协方差回归，返回 beta/alpha。
// 两条序列按日期做内连接对齐，有效样本少于 2 或基准方差过小时返回 nil。
func regress(history, benchmark Series, _ []float64, years, cagr, riskFree float64) (*float64, *float64) {
	benchRet := make(map[time.Time]float64, len(benchmark))
	for i := 1; i < len(benchmark); i++ {
		prev := benchmark[i-1].Value
		if prev == 0 {
			continue
		}
		benchRet[benchmark[i].Day] = benchmark[i].Value/prev - 1
	}

	var port, bench []float64
	for i := 1; i < len(history); i++ {
		br, ok := benchRet[history[i].Day]
		if !ok {
			continue
		}
		prev := history[i-1].Value
		if prev == 0 {
			continue
		}
		port = append(port, history[i].Value/prev-1)
		bench = append(bench, br)
	}
	if len(port) < 2 {
		return nil, nil
	}

	cov, benchVar := sampleCov(port, bench)
	if benchVar <= epsilon {
		return nil, nil
	}
	beta := cov / benchVar

	benchCAGR := 0.0
	if years > 0 && benchmark.First().Value > 0 {
		benchCAGR = math.Pow(benchmark.Last().Value/benchmark.First().Value, 1/years) - 1
	}
	expected := riskFree + beta*(benchCAGR-riskFree)
	alpha := cagr - expected
	return &beta, &alpha
}

// sampleCov 样本协方差与第二个序列的样本方差（ddof=1）。
func sampleCov(xs, ys []float64) (cov, varY float64) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0, 0
	}
	meanX, meanY := 0.0, 0.0
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varY += dy * dy
	}
	cov /= float64(n - 1)
	varY /= float64(n - 1)
	return cov, varY
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
