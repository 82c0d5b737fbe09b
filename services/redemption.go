package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"merch-loyalty-system/models"
)

// RedemptionService converts points into single-use discount codes. The
// sequence is a small saga: validate against the table, atomically
// decrement the balance, record the ledger entry under the caller's request
// id, then mint the code. Any failure after the decrement is compensated
// through the projector before the error is returned, so the caller's
// balance is provably unchanged on every failure path.
type RedemptionService struct {
	profiles    ProfileStore
	projector   *BalanceProjector
	ledger      LedgerStore
	discounts   DiscountStore
	badges      *BadgeEvaluator
	leaderboard *Leaderboard

	table      map[int64]int64 // points -> discount cents
	codeLength int
	validity   time.Duration

	logger *zap.Logger
}

func NewRedemptionService(
	profiles ProfileStore,
	projector *BalanceProjector,
	ledger LedgerStore,
	discounts DiscountStore,
	badges *BadgeEvaluator,
	leaderboard *Leaderboard,
	table map[int64]int64,
	codeLength int,
	validity time.Duration,
	logger *zap.Logger,
) *RedemptionService {
	return &RedemptionService{
		profiles:    profiles,
		projector:   projector,
		ledger:      ledger,
		discounts:   discounts,
		badges:      badges,
		leaderboard: leaderboard,
		table:       table,
		codeLength:  codeLength,
		validity:    validity,
		logger:      logger,
	}
}

// Options lists the redeemable amounts for display, smallest first.
func (s *RedemptionService) Options() []RedemptionOption {
	opts := make([]RedemptionOption, 0, len(s.table))
	for points, cents := range s.table {
		opts = append(opts, RedemptionOption{Points: points, ValueCents: cents})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Points < opts[j].Points })
	return opts
}

type RedemptionOption struct {
	Points     int64 `json:"points"`
	ValueCents int64 `json:"value_cents"`
}

// Redeem converts points into a discount code. requestID is supplied by the
// caller and makes retries of the whole call safe: a replay returns the
// originally minted code.
func (s *RedemptionService) Redeem(ctx context.Context, userID string, points int64, requestID string) (*models.DiscountCode, int64, error) {
	valueCents, ok := s.table[points]
	if !ok {
		return nil, 0, ErrInvalidRedemptionAmount
	}
	// Request ids are scoped per caller: one user's retry can never replay
	// into another user's redemption or code.
	scopedID := fmt.Sprintf("%s:%s", userID, requestID)
	idemKey := fmt.Sprintf("redeem:%s", scopedID)

	seen, err := s.ledger.Exists(ctx, idemKey)
	if err != nil {
		return nil, 0, ErrStoreUnavailable
	}
	if seen {
		return s.replay(ctx, userID, scopedID)
	}

	balance, _, err := s.projector.Apply(ctx, userID, -points)
	if err != nil {
		// InsufficientBalance or transient failure; nothing happened.
		return nil, 0, err
	}

	entry := &models.LedgerEntry{
		UserID:         userID,
		EventType:      models.EventRedemption,
		Amount:         -points,
		Metadata:       models.Metadata{"request_id": requestID},
		IdempotencyKey: idemKey,
	}
	_, created, err := s.ledger.Append(ctx, entry)
	if err != nil {
		// Entry never landed: reverting the decrement is enough.
		s.revertUnrecorded(ctx, userID, points, requestID)
		return nil, 0, ErrRedemptionFailed
	}
	if !created {
		// A concurrent call with the same request id recorded first; our
		// decrement was the extra one.
		s.revertUnrecorded(ctx, userID, points, requestID)
		return s.replay(ctx, userID, scopedID)
	}

	code, err := s.mintCode(ctx, userID, points, valueCents, scopedID)
	if err != nil {
		// The decrement is recorded but the code does not exist:
		// compensate with a reversing entry applied through the
		// projector, never a raw corrective update.
		s.compensate(ctx, userID, points, scopedID)
		return nil, 0, ErrRedemptionFailed
	}

	if s.leaderboard != nil {
		s.leaderboard.Record(ctx, userID, balance)
	}
	s.badges.EvaluateBestEffort(ctx, userID)

	s.logger.Info("points redeemed",
		zap.String("user_id", userID),
		zap.Int64("points", points),
		zap.Int64("value_cents", valueCents),
		zap.String("request_id", requestID))
	return code, balance, nil
}

func (s *RedemptionService) mintCode(ctx context.Context, userID string, points, valueCents int64, scopedID string) (*models.DiscountCode, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		value, err := randomCode(s.codeLength)
		if err != nil {
			return nil, err
		}
		dc := &models.DiscountCode{
			UserID:      userID,
			Code:        value,
			Type:        models.DiscountFixed,
			ValueCents:  valueCents,
			MaxUses:     1,
			PointsSpent: points,
			RequestID:   scopedID,
			ValidUntil:  time.Now().Add(s.validity),
		}
		err = s.discounts.Create(ctx, dc)
		if err == nil {
			return dc, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, ErrCodeGenerationExhausted
}

// revertUnrecorded undoes a decrement whose ledger entry never existed.
func (s *RedemptionService) revertUnrecorded(ctx context.Context, userID string, points int64, requestID string) {
	if _, _, err := s.projector.Apply(ctx, userID, points); err != nil {
		s.logger.Error("failed to revert unrecorded redemption decrement",
			zap.String("user_id", userID),
			zap.Int64("points", points),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// compensate reverses a recorded decrement with a matching +N entry and a
// projector apply, leaving both the ledger and the balance where they
// started.
func (s *RedemptionService) compensate(ctx context.Context, userID string, points int64, scopedID string) {
	reversal := &models.LedgerEntry{
		UserID:         userID,
		EventType:      models.EventRedemption,
		Amount:         points,
		Metadata:       models.Metadata{"request_id": scopedID, "compensates": "redeem:" + scopedID},
		IdempotencyKey: fmt.Sprintf("redeem:%s:reversal", scopedID),
	}
	if _, _, err := s.ledger.Append(ctx, reversal); err != nil {
		s.logger.Error("failed to record compensating entry",
			zap.String("user_id", userID),
			zap.String("request_id", scopedID),
			zap.Error(err))
		return
	}
	if _, _, err := s.projector.Apply(ctx, userID, points); err != nil {
		s.logger.Error("failed to apply compensating entry",
			zap.String("user_id", userID),
			zap.String("request_id", scopedID),
			zap.Error(err))
	}
}

// replay serves a retried request id without side effects.
func (s *RedemptionService) replay(ctx context.Context, userID, scopedID string) (*models.DiscountCode, int64, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, 0, ErrStoreUnavailable
	}
	code, err := s.discounts.ByRequestID(ctx, scopedID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The original attempt was compensated; this request id is
			// spent and the client should redeem again with a new one.
			return nil, profile.TotalPoints, ErrRedemptionFailed
		}
		return nil, 0, ErrStoreUnavailable
	}
	if code.UserID != userID {
		return nil, 0, ErrRedemptionFailed
	}
	return code, profile.TotalPoints, nil
}

// PurgeExpired removes expired, never-used discount codes. Used codes stay
// for history.
func (s *RedemptionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.discounts.PurgeExpiredUnused(ctx, time.Now())
}
