// Package dataset 管理日线价格数据：本地 SQLite 存储与远端数据源拉取。
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chihung1024/back-test/internal/metric"

	_ "modernc.org/sqlite"
)

// Bar 是一根日线（已复权收盘价）。Day 格式固定为 YYYY-MM-DD。
type Bar struct {
	Day    string  `json:"day"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Manifest 记录某个 ticker 数据文件的统计信息。
type Manifest struct {
	Ticker     string `json:"ticker"`
	MinDay     string `json:"min_day"`
	MaxDay     string `json:"max_day"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 按 ticker 分文件存放日线数据。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能為空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(ticker string) (*sql.DB, string, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, "", fmt.Errorf("ticker 不能為空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[ticker]; ok && db != nil {
		return db, s.dbPath(ticker), nil
	}
	path := s.dbPath(ticker)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, ticker); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[ticker] = db
	return db, path, nil
}

func (s *Store) dbPath(ticker string) string {
	return filepath.Join(s.root, ticker, "daily.db")
}

// NormalizeTicker 统一代码格式：大写并把点号换成连字符（BRK.B → BRK-B）。
func NormalizeTicker(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	return strings.ReplaceAll(ticker, ".", "-")
}

// InsertBars 批量写入日线（重复日期覆盖）。
func (s *Store) InsertBars(ctx context.Context, ticker string, bars []Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	db, _, err := s.db(ticker)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (day, close, volume)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		if b.Day == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, b.Day, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// RangeBars 返回 [start, end] 区间内的日线（日期升序；空串表示不限）。
func (s *Store) RangeBars(ctx context.Context, ticker, start, end string) ([]Bar, error) {
	db, _, err := s.db(ticker)
	if err != nil {
		return nil, err
	}
	query := `SELECT day, close, volume FROM bars`
	args := make([]any, 0, 2)
	switch {
	case start != "" && end != "":
		query += ` WHERE day BETWEEN ? AND ?`
		args = append(args, start, end)
	case start != "":
		query += ` WHERE day >= ?`
		args = append(args, start)
	case end != "":
		query += ` WHERE day <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY day ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Day, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// LoadSeries 读取区间日线并转成净值序列（收盘价）。
func (s *Store) LoadSeries(ctx context.Context, ticker, start, end string) (metric.Series, error) {
	bars, err := s.RangeBars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	series := make(metric.Series, 0, len(bars))
	for _, b := range bars {
		day, err := time.Parse("2006-01-02", b.Day)
		if err != nil {
			continue
		}
		series = append(series, metric.Point{Day: day, Value: b.Close})
	}
	return series, nil
}

func (s *Store) Manifest(ctx context.Context, ticker string) (Manifest, error) {
	db, path, err := s.db(ticker)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT ticker, min_day, max_day, rows, last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Ticker, &m.MinDay, &m.MaxDay, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_day = (SELECT COALESCE(MIN(day), '') FROM bars),
		    max_day = (SELECT COALESCE(MAX(day), '') FROM bars),
		    rows = (SELECT COUNT(1) FROM bars),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, ticker string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			day    TEXT PRIMARY KEY,
			close  REAL NOT NULL,
			volume REAL NOT NULL DEFAULT 0,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			ticker TEXT NOT NULL,
			min_day TEXT,
			max_day TEXT,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, ticker) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET ticker=excluded.ticker;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, ticker)
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
