package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chihung1024/back-test/internal/app"
	btcfg "github.com/chihung1024/back-test/internal/config"
	"github.com/chihung1024/back-test/internal/logger"
	"github.com/chihung1024/back-test/internal/render"
	"github.com/chihung1024/back-test/internal/scan"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "配置文件路徑（默認讀 BACKTEST_CONFIG 或 configs/config.yaml）")
		mode      = flag.String("mode", "serve", "運行模式：serve | update | scan")
		tickers   = flag.String("tickers", "", "scan 模式：逗號分隔的股票代碼")
		benchmark = flag.String("benchmark", "", "scan 模式：基準代碼（空則用配置默認）")
		startYM   = flag.String("start", "", "scan 模式：起始年月 YYYY-MM")
		endYM     = flag.String("end", "", "scan 模式：結束年月 YYYY-MM（空則為當月）")
	)
	flag.Parse()

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = os.Getenv("BACKTEST_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := btcfg.Load(path)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，数据目录=%s）", cfg.App.Env, cfg.Data.Root)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	switch *mode {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := application.Run(ctx); err != nil {
			log.Fatalf("运行失败: %v", err)
		}
	case "update":
		defer application.Close()
		if application.Updater() == nil {
			log.Fatalf("updater 未启用（updater.enabled=false）")
		}
		if err := application.Updater().RefreshAll(context.Background()); err != nil {
			log.Fatalf("刷新失败: %v", err)
		}
	case "scan":
		defer application.Close()
		if err := runScan(application, cfg, *tickers, *benchmark, *startYM, *endYM); err != nil {
			log.Fatalf("掃描失败: %v", err)
		}
	default:
		log.Fatalf("未知模式: %s", *mode)
	}
}

// runScan 在终端直接跑一次掃描并打印表格。
func runScan(application *app.App, cfg *btcfg.Config, tickers, benchmark, startYM, endYM string) error {
	list := splitTickers(tickers)
	if len(list) == 0 {
		return fmt.Errorf("-tickers 不能為空")
	}
	if benchmark == "" {
		benchmark = cfg.Scan.DefaultBenchmark
	}
	startYear, startMonth, err := parseYearMonth(startYM)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	endYear, endMonth := startYear, startMonth
	if endYM != "" {
		endYear, endMonth, err = parseYearMonth(endYM)
		if err != nil {
			return fmt.Errorf("-end: %w", err)
		}
	} else {
		now := time.Now()
		endYear, endMonth = now.Year(), int(now.Month())
	}

	outcome, err := application.Scan().Scan(context.Background(), scan.Request{
		Tickers:    list,
		Benchmark:  benchmark,
		StartYear:  startYear,
		StartMonth: startMonth,
		EndYear:    endYear,
		EndMonth:   endMonth,
	})
	if err != nil {
		return err
	}
	snap := application.Metrics().Snapshot()
	grid, err := outcome.Grid(snap.Definitions, snap.Formatters(), render.RowsAreEntities)
	if err != nil {
		return err
	}
	return render.WriteTerminal(os.Stdout, grid)
}

func splitTickers(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseYearMonth(s string) (int, int, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("格式應為 YYYY-MM: %w", err)
	}
	return t.Year(), int(t.Month()), nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
