package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradeloop/internal/pkg/id"
	"tradeloop/internal/store"
	"tradeloop/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultListLimit = 100

type SqliteStore struct {
	db *gorm.DB
}

var _ store.Ledger = (*SqliteStore)(nil)

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteStoreFromDB(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&model.TradeModel{}); err != nil {
		return nil, fmt.Errorf("migrate trades: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) AppendTrade(ctx context.Context, rec store.TradeRecord) (string, error) {
	if strings.TrimSpace(rec.Symbol) == "" {
		return "", errors.New("trade symbol cannot be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = id.NewAt(rec.CreatedAt)
	}
	row, err := toModel(rec)
	if err != nil {
		return "", err
	}
	// Create, never Save: an id collision must fail instead of overwriting.
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("append trade %s: %w", rec.Symbol, err)
	}
	return rec.ID, nil
}

func (s *SqliteStore) ListTrades(ctx context.Context, q store.TradeQuery) ([]store.TradeRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	tx := s.db.WithContext(ctx).Model(&model.TradeModel{})
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		tx = tx.Where("symbol = ?", sym)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UnixMilli())
	}
	var rows []model.TradeModel
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func (s *SqliteStore) CountTradesSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("created_at >= ?", since.UnixMilli()).
		Count(&n).Error
	return n, err
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(rec store.TradeRecord) (model.TradeModel, error) {
	var meta datatypes.JSON
	if len(rec.Meta) > 0 {
		raw, err := json.Marshal(rec.Meta)
		if err != nil {
			return model.TradeModel{}, fmt.Errorf("encode trade meta: %w", err)
		}
		meta = datatypes.JSON(raw)
	}
	return model.TradeModel{
		ID:            rec.ID,
		Symbol:        rec.Symbol,
		Side:          rec.Side,
		Quantity:      rec.Quantity,
		Price:         rec.Price,
		StrategyTag:   rec.StrategyTag,
		OrderID:       rec.OrderID,
		Status:        rec.Status,
		Reason:        rec.Reason,
		TickID:        rec.TickID,
		ExtendedHours: rec.ExtendedHours,
		Meta:          meta,
		CreatedAtUnix: rec.CreatedAt.UnixMilli(),
	}, nil
}

func fromModel(row model.TradeModel) store.TradeRecord {
	rec := store.TradeRecord{
		ID:            row.ID,
		Symbol:        row.Symbol,
		Side:          row.Side,
		Quantity:      row.Quantity,
		Price:         row.Price,
		StrategyTag:   row.StrategyTag,
		OrderID:       row.OrderID,
		Status:        row.Status,
		Reason:        row.Reason,
		TickID:        row.TickID,
		ExtendedHours: row.ExtendedHours,
		CreatedAt:     time.UnixMilli(row.CreatedAtUnix).UTC(),
	}
	if len(row.Meta) > 0 {
		_ = json.Unmarshal(row.Meta, &rec.Meta)
	}
	return rec
}
