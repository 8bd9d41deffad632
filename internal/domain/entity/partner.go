package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Partner represents a restaurant using the platform
type Partner struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Slug      string          `gorm:"size:255;unique;not null" json:"slug"`
	Settings  PartnerSettings `gorm:"type:jsonb;serializer:json" json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate generates a UUID before creating a new partner
func (p *Partner) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Partner model
func (Partner) TableName() string {
	return "partners"
}

// PartnerSettings holds the display and pricing configuration every
// rendering surface needs to turn an order into a bill.
type PartnerSettings struct {
	// Display
	StoreName      string `json:"store_name,omitempty"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
	TaxID          string `json:"tax_id,omitempty"`
	Currency       string `json:"currency,omitempty"`
	CurrencySymbol string `json:"currency_symbol,omitempty"`

	// Tax
	TaxRate  decimal.Decimal `json:"tax_rate"`
	TaxLabel string          `json:"tax_label,omitempty"`

	// Delivery
	DeliveryEnabled     bool                `json:"delivery_enabled"`
	Location            Coordinates         `json:"location,omitempty"`
	DeliveryRatePerKm   decimal.NullDecimal `json:"delivery_rate_per_km"`
	MaxDeliveryRadiusKm decimal.Decimal     `json:"max_delivery_radius_km"`
}

// Scan implements the sql.Scanner interface for PartnerSettings
func (ps *PartnerSettings) Scan(value interface{}) error {
	if value == nil {
		*ps = PartnerSettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PartnerSettings: unsupported type")
	}

	return json.Unmarshal(bytes, ps)
}

// Value implements the driver.Valuer interface for PartnerSettings
func (ps PartnerSettings) Value() (driver.Value, error) {
	return json.Marshal(ps)
}

// WithDefaults fills blank display fields from DefaultPartnerSettings
func (ps PartnerSettings) WithDefaults() PartnerSettings {
	def := DefaultPartnerSettings()
	if ps.Currency == "" {
		ps.Currency = def.Currency
	}
	if ps.CurrencySymbol == "" {
		ps.CurrencySymbol = def.CurrencySymbol
	}
	if ps.TaxLabel == "" {
		ps.TaxLabel = def.TaxLabel
	}
	return ps
}

// DefaultPartnerSettings returns default settings for new partners
func DefaultPartnerSettings() PartnerSettings {
	return PartnerSettings{
		Currency:            "INR",
		CurrencySymbol:      "₹",
		TaxRate:             decimal.Zero,
		TaxLabel:            "GST",
		DeliveryEnabled:     false,
		MaxDeliveryRadiusKm: decimal.NewFromInt(10),
	}
}
