package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultAppLogPath      = "data/logs/backtest.log"
	defaultDataRoot        = "data/daily"
	defaultDataRateLimit   = 120
	defaultDataConcurrent  = 8
	defaultDataTimeout     = 20
	defaultScanBenchmark   = "SPY"
	defaultScanMaxTickers  = 200
	defaultBacktestDB      = "data/db/backtest_runs.db"
	defaultBacktestBalance = 10000
	defaultBacktestLimit   = 50
	defaultUpdaterStart    = "2000-01-01"
	defaultUpdaterBatch    = 100
	defaultUpdaterDelay    = 30
	defaultUpdaterWorkers  = 8
	defaultUpdaterCron     = "0 6 * * 2-6"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Scan.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Updater.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.root", &d.Root, defaultDataRoot),
		fieldDefault{
			key:   "data.rate_limit_per_min",
			need:  func() bool { return d.RateLimitPerMin <= 0 },
			apply: func() { d.RateLimitPerMin = defaultDataRateLimit },
		},
		fieldDefault{
			key:   "data.max_concurrent",
			need:  func() bool { return d.MaxConcurrent <= 0 },
			apply: func() { d.MaxConcurrent = defaultDataConcurrent },
		},
		fieldDefault{
			key:   "data.request_timeout_seconds",
			need:  func() bool { return d.RequestTimeoutSeconds <= 0 },
			apply: func() { d.RequestTimeoutSeconds = defaultDataTimeout },
		},
	)
	if len(d.NormalizedSources()) == 0 {
		d.Sources = []string{"yahoo", "stooq"}
	}
}

func (s *ScanConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("scan.default_benchmark", &s.DefaultBenchmark, defaultScanBenchmark),
		fieldDefault{
			key:   "scan.max_tickers",
			need:  func() bool { return s.MaxTickers <= 0 },
			apply: func() { s.MaxTickers = defaultScanMaxTickers },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.db_path", &b.DBPath, defaultBacktestDB),
		fieldDefault{
			key:   "backtest.initial_balance",
			need:  func() bool { return b.InitialBalance <= 0 },
			apply: func() { b.InitialBalance = defaultBacktestBalance },
		},
		fieldDefault{
			key:   "backtest.list_limit",
			need:  func() bool { return b.ListLimit <= 0 },
			apply: func() { b.ListLimit = defaultBacktestLimit },
		},
	)
}

func (u *UpdaterConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("updater.history_start", &u.HistoryStart, defaultUpdaterStart),
		stringFieldDefault("updater.cron", &u.Cron, defaultUpdaterCron),
		fieldDefault{
			key:   "updater.batch_size",
			need:  func() bool { return u.BatchSize <= 0 },
			apply: func() { u.BatchSize = defaultUpdaterBatch },
		},
		fieldDefault{
			key:   "updater.batch_delay_seconds",
			need:  func() bool { return u.BatchDelaySeconds <= 0 },
			apply: func() { u.BatchDelaySeconds = defaultUpdaterDelay },
		},
		fieldDefault{
			key:   "updater.concurrency",
			need:  func() bool { return u.Concurrency <= 0 },
			apply: func() { u.Concurrency = defaultUpdaterWorkers },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
