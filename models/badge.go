package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Criteria is a predicate over derived user stats, stored as jsonb.
// Keys: "total_purchases", "completed_referrals", "profile_complete",
// "min_points", "tier_rank". A user satisfies the criteria when every key
// meets its threshold.
type Criteria map[string]int64

func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Criteria) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("criteria: cannot scan %T", value)
	}
}

// Badge is a catalog entry describing one achievable badge.
type Badge struct {
	ID          string   `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Code        string   `gorm:"uniqueIndex;not null" json:"code"` // e.g. "FIRST_ORDER"
	Name        string   `gorm:"not null" json:"name"`
	Description string   `json:"description"`
	IconURL     string   `gorm:"type:text" json:"icon_url"`
	Criteria    Criteria `gorm:"type:jsonb" json:"criteria"`

	// BonusPoints are granted once, through the ledger, when the badge
	// is awarded.
	BonusPoints int64 `gorm:"not null;default:0" json:"bonus_points"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge records ownership. The composite unique index makes granting
// idempotent under concurrent evaluation.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeID   string    `gorm:"not null;uniqueIndex:idx_user_badge" json:"badge_id"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// UserStats are the derived numbers badge criteria are evaluated against.
type UserStats struct {
	TotalPurchases     int64
	CompletedReferrals int64
	ProfileComplete    bool
	TotalPoints        int64
	Tier               Tier
}

// Meets reports whether the stats satisfy the criteria.
func (s UserStats) Meets(c Criteria) bool {
	for key, required := range c {
		switch key {
		case "total_purchases":
			if s.TotalPurchases < required {
				return false
			}
		case "completed_referrals":
			if s.CompletedReferrals < required {
				return false
			}
		case "profile_complete":
			if required > 0 && !s.ProfileComplete {
				return false
			}
		case "min_points":
			if s.TotalPoints < required {
				return false
			}
		case "tier_rank":
			if int64(s.Tier.Rank()) < required {
				return false
			}
		default:
			// Unknown criterion keys never match; a badge with a typo
			// should stay unawarded rather than go out to everyone.
			return false
		}
	}
	return true
}

// DefaultBadges seed the catalog on first boot.
var DefaultBadges = []Badge{
	{
		Code:        "FIRST_ORDER",
		Name:        "First Order",
		Description: "Placed your first order",
		Criteria:    Criteria{"total_purchases": 1},
		BonusPoints: 25,
	},
	{
		Code:        "LOYAL_CUSTOMER",
		Name:        "Loyal Customer",
		Description: "Placed five orders",
		Criteria:    Criteria{"total_purchases": 5},
		BonusPoints: 100,
	},
	{
		Code:        "PROFILE_COMPLETE",
		Name:        "All Set Up",
		Description: "Completed your profile",
		Criteria:    Criteria{"profile_complete": 1},
		BonusPoints: 10,
	},
	{
		Code:        "RECRUITER",
		Name:        "Recruiter",
		Description: "Referred three friends who ordered",
		Criteria:    Criteria{"completed_referrals": 3},
		BonusPoints: 150,
	},
	{
		Code:        "GOLD_MEMBER",
		Name:        "Gold Member",
		Description: "Reached the gold tier",
		Criteria:    Criteria{"tier_rank": 3},
	},
}
