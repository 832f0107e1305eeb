package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/chihung1024/back-test/internal/metric"
)

// ErrRunNotFound 表示指定回测不存在。
var ErrRunNotFound = errors.New("回測任務不存在")

type runModel struct {
	ID          string         `gorm:"column:id;primaryKey"`
	Status      string         `gorm:"column:status;index"`
	Message     string         `gorm:"column:message"`
	Config      datatypes.JSON `gorm:"column:config"`
	Stats       datatypes.JSON `gorm:"column:stats"`
	Equity      datatypes.JSON `gorm:"column:equity"`
	Benchmark   datatypes.JSON `gorm:"column:benchmark"`
	CreatedAt   int64          `gorm:"column:created_at"`
	UpdatedAt   int64          `gorm:"column:updated_at"`
	CompletedAt int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

// RunStore 用 Gorm + SQLite 持久化回测任务。
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store 路徑不能為空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, err
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create 落库一条 pending 任务。
func (s *RunStore) Create(run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	created := now
	if !run.CreatedAt.IsZero() {
		created = run.CreatedAt.Unix()
	}
	m := runModel{
		ID:        run.ID,
		Status:    run.Status,
		Config:    datatypes.JSON(cfgJSON),
		CreatedAt: created,
		UpdatedAt: now,
	}
	return s.db.Create(&m).Error
}

// SetStatus 更新任务状态与消息。
func (s *RunStore) SetStatus(id, status, message string) error {
	res := s.db.Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": time.Now().Unix(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Finish 写入完成状态与结果。
func (s *RunStore) Finish(id string, result RunResult) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return err
	}
	equityJSON, err := json.Marshal(result.Equity)
	if err != nil {
		return err
	}
	benchJSON, err := json.Marshal(result.Benchmark)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	res := s.db.Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       RunStatusDone,
		"message":      "",
		"stats":        datatypes.JSON(statsJSON),
		"equity":       datatypes.JSON(equityJSON),
		"benchmark":    datatypes.JSON(benchJSON),
		"updated_at":   now,
		"completed_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get 读取单条任务。
func (s *RunStore) Get(id string) (Run, error) {
	var m runModel
	if err := s.db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	return m.toRun()
}

// Equity 读取已完成任务的净值曲线与基准序列。
func (s *RunStore) Equity(id string) (metric.Series, metric.Series, error) {
	var m runModel
	if err := s.db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRunNotFound
		}
		return nil, nil, err
	}
	var equity, bench metric.Series
	if len(m.Equity) > 0 {
		if err := json.Unmarshal(m.Equity, &equity); err != nil {
			return nil, nil, err
		}
	}
	if len(m.Benchmark) > 0 {
		if err := json.Unmarshal(m.Benchmark, &bench); err != nil {
			return nil, nil, err
		}
	}
	return equity, bench, nil
}

// List 返回最近的任务（按创建时间倒序）。
func (s *RunStore) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []runModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := m.toRun()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (m runModel) toRun() (Run, error) {
	run := Run{
		ID:        m.ID,
		Status:    m.Status,
		Message:   m.Message,
		CreatedAt: time.Unix(m.CreatedAt, 0),
		UpdatedAt: time.Unix(m.UpdatedAt, 0),
	}
	if m.CompletedAt > 0 {
		run.CompletedAt = time.Unix(m.CompletedAt, 0)
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &run.Config); err != nil {
			return Run{}, err
		}
	}
	if len(m.Stats) > 0 {
		if err := json.Unmarshal(m.Stats, &run.Stats); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}
