package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"merch-loyalty-system/models"
)

// BalanceProjector is the only component allowed to move a balance. One
// call is one conditional store operation: add the delta, recompute the
// tier from the new total, and refuse to go negative, all in the same
// statement. Two concurrent negative deltas can therefore never both pass a
// balance check before either writes.
type BalanceProjector struct {
	profiles ProfileStore
	logger   *zap.Logger
}

func NewBalanceProjector(profiles ProfileStore, logger *zap.Logger) *BalanceProjector {
	return &BalanceProjector{profiles: profiles, logger: logger}
}

// Apply adds delta to the user's balance and returns the new balance and
// tier. ErrInsufficientBalance means the conditional update matched no row
// and nothing changed.
func (p *BalanceProjector) Apply(ctx context.Context, userID string, delta int64) (int64, models.Tier, error) {
	balance, tier, err := p.profiles.ApplyDelta(ctx, userID, delta)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrNotFound) {
			return 0, "", err
		}
		p.logger.Error("balance apply failed",
			zap.String("user_id", userID),
			zap.Int64("delta", delta),
			zap.Error(err))
		return 0, "", ErrStoreUnavailable
	}
	p.logger.Debug("balance applied",
		zap.String("user_id", userID),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance),
		zap.String("tier", string(tier)))
	return balance, tier, nil
}
