package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerScope returns a GORM scope that restricts a query to one partner.
// A nil partner id matches nothing rather than everything.
func PartnerScope(partnerID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if partnerID == uuid.Nil {
			return db.Where("1 = 0")
		}
		return db.Where("partner_id = ?", partnerID)
	}
}

// CreatedBetween returns a GORM scope filtering on created_at; nil bounds are open
func CreatedBetween(start, end *time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if start != nil {
			db = db.Where("created_at >= ?", *start)
		}
		if end != nil {
			db = db.Where("created_at <= ?", *end)
		}
		return db
	}
}
