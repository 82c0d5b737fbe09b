package models

import (
	"time"

	"gorm.io/gorm"
)

// Tier is a membership level derived purely from cumulative points.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
	TierVIP    Tier = "vip"
)

// Rank gives tiers their natural ordering (bronze < silver < gold < vip).
func (t Tier) Rank() int {
	switch t {
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierVIP:
		return 4
	default:
		return 1
	}
}

// UserProfile is the per-user loyalty state. TotalPoints and Tier are
// written only through the balance projector's conditional update; every
// other writer would break the ledger-sum invariant.
type UserProfile struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service's user id

	TotalPoints int64 `gorm:"not null;default:0" json:"total_points"`
	Tier        Tier  `gorm:"type:varchar(16);not null;default:'bronze'" json:"tier"`

	DisplayName string `json:"display_name"`

	// Birthday drives the daily birthday-XP job. Year is deliberately
	// not stored.
	BirthdayMonth *int `json:"birthday_month,omitempty"`
	BirthdayDay   *int `json:"birthday_day,omitempty"`

	Timestamps
}

// ProfileComplete reports whether the profile satisfies completeness-based
// badge criteria.
func (p *UserProfile) ProfileComplete() bool {
	return p.DisplayName != "" && p.BirthdayMonth != nil && p.BirthdayDay != nil
}

// Timestamps adds GORM auto-times.
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
