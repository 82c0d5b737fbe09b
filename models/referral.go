package models

import "time"

// ReferralCode is a user's shareable code. Created lazily on first request
// and immutable afterwards.
type ReferralCode struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string    `gorm:"uniqueIndex;not null" json:"user_id"` // ExternalUserID
	Code      string    `gorm:"uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Referral links a referred signup to its referrer. The unique index on
// ReferredID means a user can be referred at most once; repeated link calls
// are no-ops.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`       // ExternalUserID
	ReferredID string `gorm:"uniqueIndex;not null" json:"referred_id"` // ExternalUserID
	CodeUsed   string `gorm:"not null" json:"code_used"`

	// FirstOrderID is set at most once, by a conditional update that only
	// succeeds while it is still null. Completion triggers the one-time
	// referral XP award to the referrer.
	FirstOrderID *string    `gorm:"index" json:"first_order_id,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	XPAwarded    int64      `gorm:"not null;default:0" json:"xp_awarded"`

	Timestamps
}

// ReferralStats summarize a referrer's results for the account page.
type ReferralStats struct {
	TotalReferred int64 `json:"total_referred"`
	Completed     int64 `json:"completed"`
	PointsEarned  int64 `json:"points_earned"`
}
