package models

import "time"

// DiscountType is the kind of discount a code grants. Redemption only ever
// produces fixed-amount codes.
type DiscountType string

const DiscountFixed DiscountType = "fixed"

// DiscountCode is the artifact a point redemption produces: a single-use,
// fixed-value code the storefront's checkout accepts.
type DiscountCode struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"` // ExternalUserID
	Code   string `gorm:"uniqueIndex;not null" json:"code"`

	Type       DiscountType `gorm:"type:varchar(16);not null;default:'fixed'" json:"type"`
	ValueCents int64        `gorm:"not null" json:"value_cents"`
	MaxUses    int          `gorm:"not null;default:1" json:"max_uses"`
	Uses       int          `gorm:"not null;default:0" json:"uses"`

	PointsSpent int64 `gorm:"not null" json:"points_spent"`

	// RequestID ties the code back to the redeem call that created it
	// (stored as "<user_id>:<request_id>"), so a retried request returns
	// the same code instead of minting another and one caller's request id
	// can never resolve to another caller's code.
	RequestID string `gorm:"uniqueIndex;not null" json:"request_id"`

	ValidUntil time.Time `gorm:"not null;index" json:"valid_until"`

	Timestamps
}
