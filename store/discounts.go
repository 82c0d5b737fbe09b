package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
)

// Discounts implements services.DiscountStore.
type Discounts struct {
	db *gorm.DB
}

func NewDiscounts(db *gorm.DB) *Discounts {
	return &Discounts{db: db}
}

func (s *Discounts) Create(ctx context.Context, code *models.DiscountCode) error {
	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Discounts) ByRequestID(ctx context.Context, requestID string) (*models.DiscountCode, error) {
	var code models.DiscountCode
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&code).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &code, nil
}

// PurgeExpiredUnused hard-deletes codes that expired without ever being
// used. Used codes are kept for the audit trail.
func (s *Discounts) PurgeExpiredUnused(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Unscoped().
		Where("valid_until < ? AND uses = 0", before).
		Delete(&models.DiscountCode{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

var _ services.DiscountStore = (*Discounts)(nil)
