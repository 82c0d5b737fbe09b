package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"merch-loyalty-system/services"
)

// Reconciler periodically audits recently active users: the profile balance
// must equal the sum of the user's ledger entries, and any badges earned
// through paths that skipped evaluation get granted. It detects drift and
// logs it loudly; it never rewrites balances, because every legitimate
// balance change must flow through the ledger.
type Reconciler struct {
	profiles services.ProfileStore
	ledger   services.LedgerStore
	badges   *services.BadgeEvaluator
	logger   *zap.Logger
}

func NewReconciler(profiles services.ProfileStore, ledger services.LedgerStore, badges *services.BadgeEvaluator, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		profiles: profiles,
		ledger:   ledger,
		badges:   badges,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. The watermark only advances
// after a pass with no store errors, so a failed window is retried whole
// on the next tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("reconciler started", zap.Duration("interval", interval))
	// Overlap with the first window so a restart re-checks recent activity.
	watermark := time.Now().UTC().Add(-interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			passStart := time.Now().UTC()
			if r.pass(ctx, watermark) {
				watermark = passStart
			}
		}
	}
}

// pass reconciles every user with ledger activity since the watermark.
// Returns false when the window should be retried.
func (r *Reconciler) pass(ctx context.Context, since time.Time) bool {
	userIDs, err := r.ledger.ActiveUserIDsSince(ctx, since)
	if err != nil {
		r.logger.Error("reconciler: listing active users failed", zap.Error(err))
		return false
	}
	if len(userIDs) == 0 {
		return true
	}

	clean := true
	for _, userID := range userIDs {
		if err := r.checkUser(ctx, userID); err != nil {
			r.logger.Error("reconciler: user check failed", zap.String("user_id", userID), zap.Error(err))
			clean = false
		}
	}
	r.logger.Debug("reconcile pass done", zap.Int("users", len(userIDs)), zap.Bool("clean", clean))
	return clean
}

func (r *Reconciler) checkUser(ctx context.Context, userID string) error {
	profile, err := r.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := r.ledger.SumForUser(ctx, userID)
	if err != nil {
		return err
	}
	if sum != profile.TotalPoints {
		// Operator attention required: the projection and the source of
		// truth disagree.
		r.logger.Error("balance drift detected",
			zap.String("user_id", userID),
			zap.Int64("ledger_sum", sum),
			zap.Int64("profile_balance", profile.TotalPoints))
	}

	r.badges.EvaluateBestEffort(ctx, userID)
	return nil
}
