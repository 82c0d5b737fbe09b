package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
)

// Profiles implements services.ProfileStore. The balance write path is a
// single conditional UPDATE so that check-and-update is indivisible and
// tier can never disagree with the balance, even transiently.
type Profiles struct {
	db     *gorm.DB
	policy *services.TierPolicy
}

func NewProfiles(db *gorm.DB, policy *services.TierPolicy) *Profiles {
	return &Profiles{db: db, policy: policy}
}

func (s *Profiles) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.WithContext(ctx).Where("external_user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &profile, nil
}

func (s *Profiles) GetOrCreate(ctx context.Context, userID string) (*models.UserProfile, error) {
	profile, err := s.Get(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	fresh := models.UserProfile{
		ExternalUserID: userID,
		Tier:           s.policy.TierForPoints(0),
	}
	// DoNothing makes concurrent first sights of the same user safe.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, mapErr(err)
	}
	return s.Get(ctx, userID)
}

// ApplyDelta is the balance projector's single store operation: add the
// delta, recompute tier from the new total in the same statement, and
// refuse to go negative. The RETURNING clause hands back the committed
// values so balance and tier always come from the same write.
func (s *Profiles) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, models.Tier, error) {
	silver, gold, vip := s.policy.Thresholds()

	var row struct {
		TotalPoints int64
		Tier        models.Tier
	}
	res := s.db.WithContext(ctx).Raw(`
		UPDATE user_profiles
		SET total_points = total_points + ?,
		    tier = CASE
		        WHEN total_points + ? >= ? THEN 'vip'
		        WHEN total_points + ? >= ? THEN 'gold'
		        WHEN total_points + ? >= ? THEN 'silver'
		        ELSE 'bronze'
		    END,
		    updated_at = NOW()
		WHERE external_user_id = ?
		  AND deleted_at IS NULL
		  AND total_points + ? >= 0
		RETURNING total_points, tier`,
		delta,
		delta, vip,
		delta, gold,
		delta, silver,
		userID,
		delta,
	).Scan(&row)
	if res.Error != nil {
		return 0, "", res.Error
	}
	if res.RowsAffected == 0 {
		// Either the profile is missing or the delta would go negative.
		if _, err := s.Get(ctx, userID); err != nil {
			return 0, "", err
		}
		return 0, "", services.ErrInsufficientBalance
	}
	return row.TotalPoints, row.Tier, nil
}

func (s *Profiles) UpdateProfile(ctx context.Context, userID, displayName string, birthMonth, birthDay *int) (*models.UserProfile, error) {
	updates := map[string]interface{}{"display_name": displayName}
	if birthMonth != nil {
		updates["birthday_month"] = *birthMonth
	}
	if birthDay != nil {
		updates["birthday_day"] = *birthDay
	}
	res := s.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("external_user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return nil, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, services.ErrNotFound
	}
	return s.Get(ctx, userID)
}

func (s *Profiles) WithBirthdayOn(ctx context.Context, month, day int) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	err := s.db.WithContext(ctx).
		Where("birthday_month = ? AND birthday_day = ?", month, day).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

var _ services.ProfileStore = (*Profiles)(nil)
