package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType classifies what earned or spent the points.
type EventType string

const (
	EventPurchase   EventType = "purchase"
	EventReferral   EventType = "referral"
	EventBirthday   EventType = "birthday"
	EventBadge      EventType = "badge"
	EventRedemption EventType = "redemption"
	EventAdjustment EventType = "adjustment" // manual grant/correction by an operator
)

// Metadata is a small jsonb blob attached to ledger entries.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("metadata: cannot scan %T", value)
	}
}

// LedgerEntry is an immutable, signed record of one point-affecting event.
// Corrections are new entries, never edits; there is no UpdatedAt and no
// soft delete on purpose.
type LedgerEntry struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"` // ExternalUserID

	EventType EventType `gorm:"type:varchar(16);not null;index" json:"event_type"`
	Amount    int64     `gorm:"not null" json:"amount"` // signed
	Metadata  Metadata  `gorm:"type:jsonb" json:"metadata,omitempty"`

	// IdempotencyKey is derived from the triggering event (order id,
	// request id). The unique index is what makes webhook redelivery and
	// client retries exactly-once.
	IdempotencyKey string `gorm:"uniqueIndex;not null" json:"idempotency_key"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
