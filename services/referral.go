package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"merch-loyalty-system/models"
)

// codeAttempts bounds regeneration when a freshly minted code collides
// with an existing one.
const codeAttempts = 3

// ReferralService issues referral codes, links referred signups to their
// referrers, and pays out the one-time referral XP when the referred user's
// first qualifying order lands.
type ReferralService struct {
	store      ReferralStore
	awarder    *Awarder
	badges     *BadgeEvaluator
	codeLength int
	referralXP int64
	logger     *zap.Logger
}

func NewReferralService(store ReferralStore, awarder *Awarder, badges *BadgeEvaluator, codeLength int, referralXP int64, logger *zap.Logger) *ReferralService {
	return &ReferralService{
		store:      store,
		awarder:    awarder,
		badges:     badges,
		codeLength: codeLength,
		referralXP: referralXP,
		logger:     logger,
	}
}

// GetOrCreateCode returns the user's referral code, minting it on first
// request. Collisions with existing codes are retried with a fresh value up
// to codeAttempts times.
func (s *ReferralService) GetOrCreateCode(ctx context.Context, userID string) (string, error) {
	existing, err := s.store.CodeByUser(ctx, userID)
	if err == nil {
		return existing.Code, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", ErrStoreUnavailable
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		value, err := randomCode(s.codeLength)
		if err != nil {
			return "", ErrStoreUnavailable
		}
		err = s.store.InsertCode(ctx, &models.ReferralCode{UserID: userID, Code: value})
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", ErrStoreUnavailable
		}
		// Either the code value collided or a concurrent request already
		// created this user's code. The latter is settled, not retried.
		if existing, lookupErr := s.store.CodeByUser(ctx, userID); lookupErr == nil {
			return existing.Code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

// Link records that referredUserID signed up with the given code. Repeat
// calls, unknown codes, and self-referrals are quiet no-ops: signup must
// never fail because a referral code was stale.
func (s *ReferralService) Link(ctx context.Context, referredUserID, code string) error {
	owner, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("unknown referral code ignored", zap.String("code", code))
			return nil
		}
		return ErrStoreUnavailable
	}
	if owner.UserID == referredUserID {
		return nil
	}

	created, err := s.store.LinkReferral(ctx, &models.Referral{
		ReferrerID: owner.UserID,
		ReferredID: referredUserID,
		CodeUsed:   code,
	})
	if err != nil {
		return ErrStoreUnavailable
	}
	if created {
		s.logger.Info("referral linked",
			zap.String("referrer_id", owner.UserID),
			zap.String("referred_id", referredUserID))
	}
	return nil
}

// Complete marks the referred user's first qualifying order and awards the
// referrer their one-time XP. The conditional first_order_id update means a
// second order can never re-trigger the award; the ledger key on the award
// means even a redelivered first-order event pays out exactly once.
func (s *ReferralService) Complete(ctx context.Context, referredUserID, orderID string) error {
	completed, ref, err := s.store.CompleteFirstOrder(ctx, referredUserID, orderID, s.referralXP)
	if err != nil {
		return ErrStoreUnavailable
	}
	if ref == nil {
		// Not a referred user.
		return nil
	}
	if !completed {
		// Already completed. Re-issue the award anyway: the idempotency
		// key makes this a no-op when it succeeded the first time, and a
		// self-heal when it did not.
		s.awardReferrer(ctx, ref)
		return nil
	}

	s.logger.Info("referral completed",
		zap.String("referrer_id", ref.ReferrerID),
		zap.String("referred_id", referredUserID),
		zap.String("order_id", orderID))
	s.awardReferrer(ctx, ref)
	return nil
}

func (s *ReferralService) awardReferrer(ctx context.Context, ref *models.Referral) {
	key := fmt.Sprintf("referral:%s", ref.ReferredID)
	res, err := s.awarder.Award(ctx, ref.ReferrerID, models.EventReferral, s.referralXP, key, models.Metadata{
		"referred_id": ref.ReferredID,
	})
	if err != nil {
		s.logger.Error("referral XP award failed",
			zap.String("referrer_id", ref.ReferrerID),
			zap.String("referred_id", ref.ReferredID),
			zap.Error(err))
		return
	}
	if res.Applied {
		s.badges.EvaluateBestEffort(ctx, ref.ReferrerID)
	}
}

// Stats summarizes a referrer's results.
func (s *ReferralService) Stats(ctx context.Context, userID string) (models.ReferralStats, error) {
	stats, err := s.store.StatsForReferrer(ctx, userID)
	if err != nil {
		return models.ReferralStats{}, ErrStoreUnavailable
	}
	return stats, nil
}
