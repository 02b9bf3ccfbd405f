package tradelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store keeps realized trades and equity samples in SQLite.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tradelog: db path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tradelog: open db: %w", err)
	}
	if err := db.AutoMigrate(&TradeModel{}, &EquityPointModel{}); err != nil {
		return nil, fmt.Errorf("tradelog: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// WAL allows dashboard reads while the engine writes.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tradelog: create dir %s: %w", dir, err)
	}
	return nil
}

func (s *Store) RecordTrade(ctx context.Context, trade TradeModel) error {
	if trade.ClosedAt.IsZero() {
		trade.ClosedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return fmt.Errorf("tradelog: record trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]TradeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var out []TradeModel
	err := s.db.WithContext(ctx).
		Order("closed_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("tradelog: recent trades: %w", err)
	}
	return out, nil
}

func (s *Store) AddEquityPoint(ctx context.Context, at time.Time, balance float64) error {
	point := EquityPointModel{At: at.UTC(), Balance: balance}
	if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
		return fmt.Errorf("tradelog: equity point: %w", err)
	}
	return nil
}

// EquityHistory returns up to limit samples in chronological order.
func (s *Store) EquityHistory(ctx context.Context, limit int) ([]EquityPointModel, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	var out []EquityPointModel
	err := s.db.WithContext(ctx).
		Order("at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("tradelog: equity history: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
