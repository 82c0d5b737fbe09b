package services

import (
	"context"
	"time"

	"merch-loyalty-system/models"
)

// The services consume narrow capability interfaces rather than a store
// client, so any backing implementation (gorm in store/, in-memory in
// tests) can serve them.

// ProfileStore reads profiles and owns the only write path for balances.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	GetOrCreate(ctx context.Context, userID string) (*models.UserProfile, error)

	// ApplyDelta atomically adds delta to the balance and recomputes the
	// tier in the same statement, refusing to take the balance negative.
	// Returns ErrInsufficientBalance when the condition failed and
	// ErrNotFound when the profile does not exist.
	ApplyDelta(ctx context.Context, userID string, delta int64) (int64, models.Tier, error)

	UpdateProfile(ctx context.Context, userID, displayName string, birthMonth, birthDay *int) (*models.UserProfile, error)
	WithBirthdayOn(ctx context.Context, month, day int) ([]models.UserProfile, error)
}

// LedgerStore is the append-only, idempotent event log.
type LedgerStore interface {
	// Append writes the entry unless its idempotency key already exists,
	// in which case the existing entry is returned with created=false.
	Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error)
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
	ListByUser(ctx context.Context, userID string, page, size int) ([]models.LedgerEntry, int64, error)
	SumForUser(ctx context.Context, userID string) (int64, error)
	ActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error)
}

// OwnedBadge joins ownership with its catalog entry for display.
type OwnedBadge struct {
	models.Badge
	AwardedAt time.Time `json:"awarded_at"`
}

// BadgeStore is the badge capability surface: catalog, ownership, and the
// derived stats criteria are evaluated against.
type BadgeStore interface {
	Catalog(ctx context.Context) ([]models.Badge, error)
	OwnedBadgeIDs(ctx context.Context, userID string) (map[string]bool, error)
	// Grant upserts ownership; granted=false means someone else already
	// holds the (user, badge) pair.
	Grant(ctx context.Context, userID, badgeID string) (bool, error)
	Stats(ctx context.Context, userID string) (models.UserStats, error)
	ListOwned(ctx context.Context, userID string) ([]OwnedBadge, error)
}

// ReferralStore persists referral codes and referrer/referred links.
type ReferralStore interface {
	CodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
	// InsertCode returns ErrConflict when the code value is taken.
	InsertCode(ctx context.Context, code *models.ReferralCode) error
	ResolveCode(ctx context.Context, code string) (*models.ReferralCode, error)
	// LinkReferral inserts the pending link; created=false when the
	// referred user is already linked.
	LinkReferral(ctx context.Context, ref *models.Referral) (bool, error)
	ReferralByReferred(ctx context.Context, referredID string) (*models.Referral, error)
	// CompleteFirstOrder sets first_order_id only while it is still null.
	// completed=false means the referral was already completed (or never
	// existed).
	CompleteFirstOrder(ctx context.Context, referredID, orderID string, xp int64) (bool, *models.Referral, error)
	StatsForReferrer(ctx context.Context, referrerID string) (models.ReferralStats, error)
}

// DiscountStore persists redemption artifacts.
type DiscountStore interface {
	// Create returns ErrConflict when the code value collides.
	Create(ctx context.Context, code *models.DiscountCode) error
	ByRequestID(ctx context.Context, requestID string) (*models.DiscountCode, error)
	PurgeExpiredUnused(ctx context.Context, before time.Time) (int64, error)
}
