package request

import (
	"github.com/shopspring/decimal"
)

// OrderItemRequest is one line of a new order. Price and quantity may be omitted
// by older ordering clients; billing treats them as zero.
type OrderItemRequest struct {
	ID          string              `json:"id" binding:"required"`
	Name        string              `json:"name" binding:"required"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Quantity    *int                `json:"quantity"`
	CategoryRef string              `json:"category_ref"`
}

// ExtraChargeRequest is an extra charge attached to a new order
type ExtraChargeRequest struct {
	ID         string              `json:"id"`
	Name       string              `json:"name" binding:"required"`
	Amount     decimal.NullDecimal `json:"amount"`
	ChargeType string              `json:"charge_type"`
}

// CreateOrderRequest represents the create order request body
type CreateOrderRequest struct {
	Type            string               `json:"type" binding:"required,oneof=table delivery pos"`
	TableNumber     *string              `json:"table_number"`
	DeliveryAddress *string              `json:"delivery_address"`
	CustomerCoords  []float64            `json:"customer_coords"`
	CustomerName    string               `json:"customer_name" binding:"max=255"`
	CustomerPhone   string               `json:"customer_phone" binding:"max=50"`
	Items           []OrderItemRequest   `json:"items" binding:"required,min=1,dive"`
	ExtraCharges    []ExtraChargeRequest `json:"extra_charges" binding:"dive"`
	TaxIncluded     bool                 `json:"tax_included"`
	TaxPercentage   decimal.NullDecimal  `json:"tax_percentage"`
}

// UpdateOrderStatusRequest represents the status change request body
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// DeliveryEstimateRequest asks for the delivery cost to a customer location
type DeliveryEstimateRequest struct {
	CustomerCoords []float64 `json:"customer_coords" binding:"required"`
}
