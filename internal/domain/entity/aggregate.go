package entity

import "github.com/shopspring/decimal"

// BillingBreakdown is derived from an order on every render and never stored
type BillingBreakdown struct {
	FoodSubtotal      decimal.Decimal `json:"food_subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	ExtraChargesTotal decimal.Decimal `json:"extra_charges_total"`
	DeliveryCost      decimal.Decimal `json:"delivery_cost"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
}

// OrderAggregate is the view model shared by the tracking page, printed bill,
// kitchen ticket, admin dashboard and captain app.
type OrderAggregate struct {
	Order
	Billing        BillingBreakdown `json:"billing"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	TaxLabel       string           `json:"tax_label"`
	Currency       string           `json:"currency"`
	CurrencySymbol string           `json:"currency_symbol"`
	StoreName      string           `json:"store_name"`
}
