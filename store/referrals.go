package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
)

// Referrals implements services.ReferralStore.
type Referrals struct {
	db *gorm.DB
}

func NewReferrals(db *gorm.DB) *Referrals {
	return &Referrals{db: db}
}

func (s *Referrals) CodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	var code models.ReferralCode
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&code).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &code, nil
}

func (s *Referrals) InsertCode(ctx context.Context, code *models.ReferralCode) error {
	// Collisions on either unique column (user already has a code, or the
	// random value is taken) surface as ErrConflict; the service decides
	// whether to re-read or re-mint.
	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Referrals) ResolveCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &rc, nil
}

func (s *Referrals) LinkReferral(ctx context.Context, ref *models.Referral) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(ref)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Referrals) ReferralByReferred(ctx context.Context, referredID string) (*models.Referral, error) {
	var ref models.Referral
	err := s.db.WithContext(ctx).Where("referred_id = ?", referredID).First(&ref).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &ref, nil
}

// CompleteFirstOrder stamps the referred user's first qualifying order, but
// only while first_order_id is still null. Concurrent webhooks for two
// orders race here and exactly one wins; the loser sees completed=false and
// the already-stamped row.
func (s *Referrals) CompleteFirstOrder(ctx context.Context, referredID, orderID string, xp int64) (bool, *models.Referral, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referred_id = ? AND first_order_id IS NULL", referredID).
		Updates(map[string]interface{}{
			"first_order_id": orderID,
			"completed_at":   now,
			"xp_awarded":     xp,
		})
	if res.Error != nil {
		return false, nil, res.Error
	}

	ref, err := s.ReferralByReferred(ctx, referredID)
	if err != nil {
		if err == services.ErrNotFound {
			return false, nil, nil
		}
		return false, nil, err
	}
	return res.RowsAffected > 0, ref, nil
}

func (s *Referrals) StatsForReferrer(ctx context.Context, referrerID string) (models.ReferralStats, error) {
	var stats models.ReferralStats
	err := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&stats.TotalReferred).Error
	if err != nil {
		return stats, err
	}

	row := struct {
		Completed    int64
		PointsEarned int64
	}{}
	err = s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Select("COUNT(*) AS completed, COALESCE(SUM(xp_awarded), 0) AS points_earned").
		Where("referrer_id = ? AND first_order_id IS NOT NULL", referrerID).
		Scan(&row).Error
	if err != nil {
		return stats, err
	}
	stats.Completed = row.Completed
	stats.PointsEarned = row.PointsEarned
	return stats, nil
}

var _ services.ReferralStore = (*Referrals)(nil)
