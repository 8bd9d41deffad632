package entity

import "github.com/shopspring/decimal"

// ReceiptHeader holds the store header printed at the top of a bill or ticket.
type ReceiptHeader struct {
	StoreName string `json:"store_name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	TaxID     string `json:"tax_id,omitempty"`
}

// ReceiptItem represents a single line item on a bill.
type ReceiptItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// ReceiptCharge is an extra charge line as it contributes to the bill.
type ReceiptCharge struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Receipt is a printable customer bill.
// It is not a database entity; it is composed from an OrderAggregate at print time.
type Receipt struct {
	Header         ReceiptHeader   `json:"header"`
	OrderNo        string          `json:"order_no"`
	Date           string          `json:"date"`
	OrderType      string          `json:"order_type"`
	Table          string          `json:"table,omitempty"`
	Customer       string          `json:"customer,omitempty"`
	Status         string          `json:"status"`
	CurrencySymbol string          `json:"currency_symbol"`
	Items          []ReceiptItem   `json:"items"`
	Charges        []ReceiptCharge `json:"charges,omitempty"`
	SubTotal       decimal.Decimal `json:"sub_total"`
	TaxLabel       string          `json:"tax_label"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Tax            decimal.Decimal `json:"tax"`
	DeliveryKm     decimal.Decimal `json:"delivery_km"`
	Delivery       decimal.Decimal `json:"delivery"`
	Total          decimal.Decimal `json:"total"`
}

// KitchenTicketItem is a line on a kitchen order ticket (no prices).
type KitchenTicketItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// KitchenTicket (KOT) tells the kitchen what to prepare for an order.
type KitchenTicket struct {
	StoreName string              `json:"store_name"`
	OrderNo   string              `json:"order_no"`
	Date      string              `json:"date"`
	OrderType string              `json:"order_type"`
	Table     string              `json:"table,omitempty"`
	Address   string              `json:"address,omitempty"`
	Items     []KitchenTicketItem `json:"items"`
	TotalQty  int                 `json:"total_qty"`
}
