package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"merch-loyalty-system/models"
)

// BadgeEvaluator walks the catalog after every points-affecting operation
// (and after profile edits) and grants whatever the user now qualifies for.
// Granting is keyed on the (user, badge) unique pair, so concurrent or
// redundant evaluation can never hand out a badge twice.
type BadgeEvaluator struct {
	store   BadgeStore
	awarder *Awarder
	logger  *zap.Logger
}

func NewBadgeEvaluator(store BadgeStore, awarder *Awarder, logger *zap.Logger) *BadgeEvaluator {
	return &BadgeEvaluator{store: store, awarder: awarder, logger: logger}
}

// Evaluate grants every catalog badge whose criteria the user's derived
// stats now satisfy. Safe to call from anywhere: it only ever adds
// ownership rows and bonus entries, never removes or double-grants.
func (e *BadgeEvaluator) Evaluate(ctx context.Context, userID string) error {
	stats, err := e.store.Stats(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user stats: %w", err)
	}
	catalog, err := e.store.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("loading badge catalog: %w", err)
	}
	owned, err := e.store.OwnedBadgeIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading owned badges: %w", err)
	}

	for _, badge := range catalog {
		if owned[badge.ID] || !stats.Meets(badge.Criteria) {
			continue
		}
		granted, err := e.store.Grant(ctx, userID, badge.ID)
		if err != nil {
			return fmt.Errorf("granting badge %s: %w", badge.Code, err)
		}
		if !granted {
			// Another evaluation got there first.
			continue
		}
		e.logger.Info("badge awarded",
			zap.String("user_id", userID),
			zap.String("badge", badge.Code))

		if badge.BonusPoints > 0 {
			key := fmt.Sprintf("badge:%s:%s", userID, badge.Code)
			if _, err := e.awarder.Award(ctx, userID, models.EventBadge, badge.BonusPoints, key, models.Metadata{
				"badge_code": badge.Code,
			}); err != nil {
				// The badge is granted either way; the bonus will not
				// retry, so make the failure visible.
				e.logger.Error("badge bonus award failed",
					zap.String("user_id", userID),
					zap.String("badge", badge.Code),
					zap.Error(err))
			}
		}
	}
	return nil
}

// EvaluateBestEffort logs instead of failing, for call sites where badge
// grants must never break the parent operation.
func (e *BadgeEvaluator) EvaluateBestEffort(ctx context.Context, userID string) {
	if err := e.Evaluate(ctx, userID); err != nil {
		e.logger.Warn("badge evaluation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
