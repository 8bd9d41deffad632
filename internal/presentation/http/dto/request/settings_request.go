package request

import "github.com/shopspring/decimal"

// UpdateSettingsRequest represents a partial partner settings update
type UpdateSettingsRequest struct {
	StoreName           *string          `json:"store_name" binding:"omitempty,max=255"`
	Address             *string          `json:"address" binding:"omitempty,max=500"`
	Phone               *string          `json:"phone" binding:"omitempty,max=50"`
	TaxID               *string          `json:"tax_id" binding:"omitempty,max=50"`
	Currency            *string          `json:"currency"`
	CurrencySymbol      *string          `json:"currency_symbol" binding:"omitempty,max=8"`
	TaxRate             *decimal.Decimal `json:"tax_rate"`
	TaxLabel            *string          `json:"tax_label" binding:"omitempty,max=20"`
	DeliveryEnabled     *bool            `json:"delivery_enabled"`
	Location            []float64        `json:"location"`
	DeliveryRatePerKm   *decimal.Decimal `json:"delivery_rate_per_km"`
	MaxDeliveryRadiusKm *decimal.Decimal `json:"max_delivery_radius_km"`
}
