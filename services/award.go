package services

import (
	"context"

	"go.uber.org/zap"

	"merch-loyalty-system/models"
)

// Awarder runs the apply-then-record sequence every point mutation shares:
// move the balance through the projector, append the ledger entry under the
// event's idempotency key, and undo the balance move if the entry cannot be
// recorded. Keeping both halves in one place is what makes the running
// balance always equal the sum of recorded entries.
type Awarder struct {
	profiles    ProfileStore
	projector   *BalanceProjector
	ledger      LedgerStore
	leaderboard *Leaderboard
	logger      *zap.Logger
}

func NewAwarder(profiles ProfileStore, projector *BalanceProjector, ledger LedgerStore, leaderboard *Leaderboard, logger *zap.Logger) *Awarder {
	return &Awarder{
		profiles:    profiles,
		projector:   projector,
		ledger:      ledger,
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// AwardResult reports what an Award call did.
type AwardResult struct {
	Entry   *models.LedgerEntry
	Balance int64
	Tier    models.Tier
	// Applied is false when the idempotency key had already been
	// recorded and this call changed nothing.
	Applied bool
}

// Award applies amount to the user's balance and records the entry exactly
// once per idempotency key. Replays return the original entry and the
// current balance without side effects.
func (a *Awarder) Award(ctx context.Context, userID string, event models.EventType, amount int64, idemKey string, meta models.Metadata) (*AwardResult, error) {
	// Fast path for redelivered events: no balance movement at all.
	seen, err := a.ledger.Exists(ctx, idemKey)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if seen {
		return a.replayResult(ctx, userID, idemKey)
	}

	balance, tier, err := a.projector.Apply(ctx, userID, amount)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		UserID:         userID,
		EventType:      event,
		Amount:         amount,
		Metadata:       meta,
		IdempotencyKey: idemKey,
	}
	stored, created, err := a.ledger.Append(ctx, entry)
	if err != nil {
		// The balance moved but the entry was not recorded: undo the
		// move so the failure leaves no trace.
		a.revert(ctx, userID, amount, idemKey)
		return nil, ErrStoreUnavailable
	}
	if !created {
		// A concurrent delivery of the same event won the append race.
		// Our apply was the extra one; take it back.
		a.revert(ctx, userID, amount, idemKey)
		res, rerr := a.replayResult(ctx, userID, idemKey)
		if rerr != nil {
			return nil, rerr
		}
		res.Entry = stored
		return res, nil
	}

	if a.leaderboard != nil {
		a.leaderboard.Record(ctx, userID, balance)
	}
	return &AwardResult{Entry: stored, Balance: balance, Tier: tier, Applied: true}, nil
}

func (a *Awarder) revert(ctx context.Context, userID string, amount int64, idemKey string) {
	if _, _, err := a.projector.Apply(ctx, userID, -amount); err != nil {
		a.logger.Error("failed to revert unrecorded balance change",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.String("idempotency_key", idemKey),
			zap.Error(err))
	}
}

func (a *Awarder) replayResult(ctx context.Context, userID, idemKey string) (*AwardResult, error) {
	profile, err := a.profiles.Get(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	a.logger.Debug("duplicate event ignored",
		zap.String("user_id", userID),
		zap.String("idempotency_key", idemKey))
	return &AwardResult{Balance: profile.TotalPoints, Tier: profile.Tier, Applied: false}, nil
}
