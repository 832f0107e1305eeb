package config

import (
	"fmt"
	"strings"
	"time"
)

var knownSources = map[string]bool{"yahoo": true, "stooq": true}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Scan.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Updater.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %s", a.LogLevel)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.Root) == "" {
		return fmt.Errorf("data.root cannot be empty")
	}
	sources := d.NormalizedSources()
	if len(sources) == 0 {
		return fmt.Errorf("data.sources requires at least one source")
	}
	for _, name := range sources {
		if !knownSources[name] {
			return fmt.Errorf("unknown data source: %s", name)
		}
	}
	if d.RateLimitPerMin <= 0 {
		return fmt.Errorf("data.rate_limit_per_min must be > 0")
	}
	if d.MaxConcurrent <= 0 {
		return fmt.Errorf("data.max_concurrent must be > 0")
	}
	return nil
}

func (s *ScanConfig) validate() error {
	if strings.TrimSpace(s.DefaultBenchmark) == "" {
		return fmt.Errorf("scan.default_benchmark cannot be empty")
	}
	if s.MaxTickers <= 0 {
		return fmt.Errorf("scan.max_tickers must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if strings.TrimSpace(b.DBPath) == "" {
		return fmt.Errorf("backtest.db_path cannot be empty")
	}
	if b.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be > 0")
	}
	return nil
}

func (u *UpdaterConfig) validate() error {
	if !u.Enabled {
		return nil
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(u.HistoryStart)); err != nil {
		return fmt.Errorf("updater.history_start must be YYYY-MM-DD: %w", err)
	}
	if u.BatchSize <= 0 {
		return fmt.Errorf("updater.batch_size must be > 0")
	}
	if u.Concurrency <= 0 {
		return fmt.Errorf("updater.concurrency must be > 0")
	}
	return nil
}
