package entity

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKey stores processed order submissions so a retried request
// replays the original response instead of creating a second order. A zero
// ResponseCode marks a key whose request is still in flight.
type IdempotencyKey struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key          string    `gorm:"uniqueIndex:idx_idempotency_partner_key;size:255;not null"`
	PartnerID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_partner_key"`
	Endpoint     string    `gorm:"size:255;not null"` // e.g. "POST /api/v1/partners/:partner_id/orders"
	ResponseCode int       `gorm:"not null"`
	ResponseBody string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	ExpiresAt    time.Time `gorm:"not null;index"`
}

// TableName returns the table name for IdempotencyKey
func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}

// IsPending reports whether the request holding the key has not responded yet
func (i *IdempotencyKey) IsPending() bool {
	return i.ResponseCode == 0
}

// IsExpired checks if the idempotency key has expired
func (i *IdempotencyKey) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}
