package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
)

// Badges implements services.BadgeStore: the catalog, ownership rows, and
// the derived stats the evaluator checks criteria against.
type Badges struct {
	db *gorm.DB
}

func NewBadges(db *gorm.DB) *Badges {
	return &Badges{db: db}
}

func (s *Badges) Catalog(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&badges).Error; err != nil {
		return nil, err
	}
	return badges, nil
}

func (s *Badges) OwnedBadgeIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}
	return owned, nil
}

// Grant upserts the ownership row. The composite unique index on
// (user_id, badge_id) plus DoNothing makes concurrent evaluations award
// each badge exactly once: only the insert that actually landed reports
// granted=true.
func (s *Badges) Grant(ctx context.Context, userID, badgeID string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&models.UserBadge{UserID: userID, BadgeID: badgeID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Badges) Stats(ctx context.Context, userID string) (models.UserStats, error) {
	var stats models.UserStats

	var profile models.UserProfile
	err := s.db.WithContext(ctx).Where("external_user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, services.ErrNotFound
		}
		return stats, err
	}
	stats.TotalPoints = profile.TotalPoints
	stats.Tier = profile.Tier
	stats.ProfileComplete = profile.ProfileComplete()

	if err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("user_id = ? AND event_type = ?", userID, models.EventPurchase).
		Count(&stats.TotalPurchases).Error; err != nil {
		return stats, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("referrer_id = ? AND first_order_id IS NOT NULL", userID).
		Count(&stats.CompletedReferrals).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Badges) ListOwned(ctx context.Context, userID string) ([]services.OwnedBadge, error) {
	var owned []services.OwnedBadge
	err := s.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Select("badges.*, user_badges.awarded_at").
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.awarded_at DESC").
		Scan(&owned).Error
	if err != nil {
		return nil, err
	}
	return owned, nil
}

// CreateBadge adds a catalog entry. Returns services.ErrConflict when the
// code is already taken.
func (s *Badges) CreateBadge(ctx context.Context, badge *models.Badge) error {
	if err := s.db.WithContext(ctx).Create(badge).Error; err != nil {
		return mapErr(err)
	}
	return nil
}

// SeedDefaults inserts the built-in badge catalog, leaving any badge an
// operator already customized untouched.
func (s *Badges) SeedDefaults(ctx context.Context) error {
	for i := range models.DefaultBadges {
		badge := models.DefaultBadges[i]
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge).Error
		if err != nil {
			return err
		}
	}
	return nil
}

var _ services.BadgeStore = (*Badges)(nil)
