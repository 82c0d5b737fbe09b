package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
)

// Ledger implements services.LedgerStore: an append-only log where the
// unique idempotency key carries the exactly-once guarantee. Entries are
// never updated or deleted.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (s *Ledger) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(entry).Error
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	// Replay: hand back the entry the first delivery wrote.
	var existing models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("idempotency_key = ?", entry.IdempotencyKey).
		First(&existing).Error; err != nil {
		return nil, false, mapErr(err)
	}
	return &existing, false, nil
}

func (s *Ledger) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("idempotency_key = ?", idempotencyKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Ledger) ListByUser(ctx context.Context, userID string, page, size int) ([]models.LedgerEntry, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Ledger) SumForUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *Ledger) ActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("created_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ services.LedgerStore = (*Ledger)(nil)
