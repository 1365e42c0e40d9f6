package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"quantbrains/internal/schema"
)

const (
	defaultRecentLimit = 50
	insertBatchSize    = 100
)

var ErrNilDB = errors.New("history: nil db")

// Store persists refresh results and command exchanges.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the history tables and returns a store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if err := db.AutoMigrate(&StrategyRecord{}, &CommandRecord{}, &AccountRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveRefresh stores every sample of one refresh in a single transaction.
func (s *Store) SaveRefresh(ctx context.Context, version uint64, at time.Time, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]StrategyRecord, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, sample.record(version, at))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
}

// SaveCommand stores one command exchange.
func (s *Store) SaveCommand(ctx context.Context, command string, success bool, message string, cmdErr error, d time.Duration, at time.Time) error {
	rec := CommandRecord{
		Command:    command,
		Success:    success,
		Message:    message,
		DurationMs: d.Milliseconds(),
		CreatedAt:  at,
	}
	if cmdErr != nil {
		rec.Error = cmdErr.Error()
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// SaveAccount stores one account sample.
func (s *Store) SaveAccount(ctx context.Context, account schema.Account, at time.Time) error {
	rec := AccountRecord{
		Balance:    account.Balance,
		Equity:     account.Equity,
		FreeMargin: account.FreeMargin,
		Currency:   account.Currency,
		CreatedAt:  at,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns the newest rows for one strategy, newest first.
func (s *Store) Recent(ctx context.Context, strategyID int, limit int) ([]StrategyRecord, error) {
	var rows []StrategyRecord
	err := s.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("created_at DESC").Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// RecentCommands returns the newest command exchanges, newest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	var rows []CommandRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// LatestAccount returns the newest account sample.
func (s *Store) LatestAccount(ctx context.Context) (AccountRecord, bool, error) {
	var rec AccountRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AccountRecord{}, false, nil
	}
	if err != nil {
		return AccountRecord{}, false, err
	}
	return rec, true, nil
}

// Prune deletes rows older than before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&StrategyRecord{}, &CommandRecord{}, &AccountRecord{}} {
			res := tx.Where("created_at < ?", before).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return limit
}
