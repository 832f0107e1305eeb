package config

import "strings"

// Config 是回测服务的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Scan     ScanConfig     `toml:"scan"`
	Backtest BacktestConfig `toml:"backtest"`
	Updater  UpdaterConfig  `toml:"updater"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 描述日线仓库与数据源访问方式。
type DataConfig struct {
	Root                  string   `toml:"root"`
	Sources               []string `toml:"sources"` // "yahoo" | "stooq"，按顺序回退
	RateLimitPerMin       int      `toml:"rate_limit_per_min"`
	MaxConcurrent         int      `toml:"max_concurrent"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

type ScanConfig struct {
	DefaultBenchmark string `toml:"default_benchmark"`
	MaxTickers       int    `toml:"max_tickers"`
}

type BacktestConfig struct {
	DBPath         string  `toml:"db_path"`
	InitialBalance float64 `toml:"initial_balance"`
	ListLimit      int     `toml:"list_limit"`
}

// UpdaterConfig 控制全量刷新任务。
type UpdaterConfig struct {
	Enabled           bool   `toml:"enabled"`
	HistoryStart      string `toml:"history_start"`
	BatchSize         int    `toml:"batch_size"`
	BatchDelaySeconds int    `toml:"batch_delay_seconds"`
	Concurrency       int    `toml:"concurrency"`
	Cron              string `toml:"cron"`
	ConstituentsURL   string `toml:"constituents_url"`
}

// MetricsConfig 指向指标定义文件；留空时使用内建定义。
type MetricsConfig struct {
	PresetsPath string `toml:"presets_path"`
}

// NormalizedSources 返回去重、小写后的数据源顺序。
func (d DataConfig) NormalizedSources() []string {
	seen := make(map[string]bool, len(d.Sources))
	out := make([]string, 0, len(d.Sources))
	for _, name := range d.Sources {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
