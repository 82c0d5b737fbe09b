package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"merch-loyalty-system/models"
)

// LoyaltyService is the entry point collaborators call: purchase webhooks,
// the account UI, profile edits, and the birthday job all come through
// here. It composes the awarder, badge evaluator, and referral service and
// owns the XP formulas (all injected configuration, no literals).
type LoyaltyService struct {
	profiles  ProfileStore
	ledger    LedgerStore
	awarder   *Awarder
	badges    *BadgeEvaluator
	referrals *ReferralService
	policy    *TierPolicy

	pointsPerDollar int64
	birthdayXP      int64

	titleCaser cases.Caser
	logger     *zap.Logger
}

func NewLoyaltyService(
	profiles ProfileStore,
	ledger LedgerStore,
	awarder *Awarder,
	badges *BadgeEvaluator,
	referrals *ReferralService,
	policy *TierPolicy,
	pointsPerDollar, birthdayXP int64,
	logger *zap.Logger,
) *LoyaltyService {
	return &LoyaltyService{
		profiles:        profiles,
		ledger:          ledger,
		awarder:         awarder,
		badges:          badges,
		referrals:       referrals,
		policy:          policy,
		pointsPerDollar: pointsPerDollar,
		birthdayXP:      birthdayXP,
		titleCaser:      cases.Title(language.English),
		logger:          logger,
	}
}

// PointsForOrder converts an order total into XP: whole dollars times the
// configured rate, floored. Monotonic in the total.
func (s *LoyaltyService) PointsForOrder(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return (totalCents / 100) * s.pointsPerDollar
}

// AwardForPurchase credits XP for a paid order. Idempotent on orderID, so a
// redelivered payment webhook changes the balance only once. It also drives
// referral completion: if the payer was referred and this is their first
// qualifying order, the referrer gets their one-time award.
func (s *LoyaltyService) AwardForPurchase(ctx context.Context, userID, orderID string, totalCents int64) (*AwardResult, error) {
	if _, err := s.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, ErrStoreUnavailable
	}

	points := s.PointsForOrder(totalCents)
	var res *AwardResult
	if points > 0 {
		key := fmt.Sprintf("purchase:%s", orderID)
		var err error
		res, err = s.awarder.Award(ctx, userID, models.EventPurchase, points, key, models.Metadata{
			"order_id":    orderID,
			"total_cents": strconv.FormatInt(totalCents, 10),
		})
		if err != nil {
			return nil, err
		}
		if res.Applied {
			s.badges.EvaluateBestEffort(ctx, userID)
		}
	} else {
		profile, err := s.profiles.Get(ctx, userID)
		if err != nil {
			return nil, ErrStoreUnavailable
		}
		res = &AwardResult{Balance: profile.TotalPoints, Tier: profile.Tier}
	}

	// Best-effort: a referral hiccup must not fail the purchase credit.
	if err := s.referrals.Complete(ctx, userID, orderID); err != nil {
		s.logger.Warn("referral completion failed",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return res, nil
}

// AwardBirthday credits the yearly birthday bonus. Idempotent per user and
// calendar year.
func (s *LoyaltyService) AwardBirthday(ctx context.Context, userID string, year int) error {
	if s.birthdayXP <= 0 {
		return nil
	}
	key := fmt.Sprintf("birthday:%s:%d", userID, year)
	res, err := s.awarder.Award(ctx, userID, models.EventBirthday, s.birthdayXP, key, nil)
	if err != nil {
		return err
	}
	if res.Applied {
		s.badges.EvaluateBestEffort(ctx, userID)
	}
	return nil
}

// GrantAdjustment records a manual, signed correction by an operator. The
// caller supplies the request id that keys the entry.
func (s *LoyaltyService) GrantAdjustment(ctx context.Context, userID string, points int64, reason, requestID string) (*AwardResult, error) {
	if _, err := s.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, ErrStoreUnavailable
	}
	key := fmt.Sprintf("adjustment:%s", requestID)
	res, err := s.awarder.Award(ctx, userID, models.EventAdjustment, points, key, models.Metadata{
		"reason": reason,
	})
	if err != nil {
		return nil, err
	}
	if res.Applied {
		s.badges.EvaluateBestEffort(ctx, userID)
	}
	return res, nil
}

// Overview is the account page payload.
type Overview struct {
	Profile      *models.UserProfile `json:"profile"`
	NextTier     models.Tier         `json:"next_tier,omitempty"`
	PointsToNext int64               `json:"points_to_next,omitempty"`
}

// Me returns the user's profile with next-tier progress, creating the
// profile on first sight.
func (s *LoyaltyService) Me(ctx context.Context, userID string) (*Overview, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	next, missing := s.policy.NextTier(profile.TotalPoints)
	return &Overview{Profile: profile, NextTier: next, PointsToNext: missing}, nil
}

// History returns the user's ledger entries, newest first.
func (s *LoyaltyService) History(ctx context.Context, userID string, page, size int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	entries, total, err := s.ledger.ListByUser(ctx, userID, page, size)
	if err != nil {
		return nil, 0, ErrStoreUnavailable
	}
	return entries, total, nil
}

// UpdateProfile normalizes and stores the display name and birthday, then
// re-evaluates badges since profile completeness is a criterion.
func (s *LoyaltyService) UpdateProfile(ctx context.Context, userID, displayName string, birthMonth, birthDay *int) (*models.UserProfile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName != "" {
		displayName = s.titleCaser.String(displayName)
	}
	if birthMonth != nil && (*birthMonth < 1 || *birthMonth > 12) {
		return nil, fmt.Errorf("%w: birthday month out of range", ErrConflict)
	}
	if birthDay != nil && (*birthDay < 1 || *birthDay > 31) {
		return nil, fmt.Errorf("%w: birthday day out of range", ErrConflict)
	}

	if _, err := s.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, ErrStoreUnavailable
	}
	profile, err := s.profiles.UpdateProfile(ctx, userID, displayName, birthMonth, birthDay)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrStoreUnavailable
	}
	s.badges.EvaluateBestEffort(ctx, userID)
	return profile, nil
}

// Badges lists the user's owned badges with catalog details.
func (s *LoyaltyService) Badges(ctx context.Context, userID string) ([]OwnedBadge, error) {
	owned, err := s.badges.store.ListOwned(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	return owned, nil
}
