package entity

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the single canonical order record. Money totals are never stored on it;
// they are derived by the billing calculator every time the order is rendered.
type Order struct {
	ID              uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	PartnerID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"partner_id"`
	Type            enum.OrderType      `gorm:"size:20;not null" json:"type"`
	Status          enum.OrderStatus    `gorm:"size:20;not null;index" json:"status"`
	StatusHistory   []StatusEntry       `gorm:"type:jsonb;serializer:json" json:"status_history"`
	Items           []OrderLineItem     `gorm:"type:jsonb;serializer:json" json:"items"`
	ExtraCharges    []ExtraCharge       `gorm:"type:jsonb;serializer:json" json:"extra_charges"`
	TaxIncluded     bool                `gorm:"default:false" json:"tax_included"`
	TaxPercentage   decimal.NullDecimal `gorm:"type:numeric(6,3)" json:"tax_percentage"`
	Delivery        *DeliveryInfo       `gorm:"type:jsonb;serializer:json" json:"delivery_info,omitempty"`
	TableNumber     *string             `gorm:"size:20" json:"table_number,omitempty"`
	DeliveryAddress *string             `gorm:"size:500" json:"delivery_address,omitempty"`
	CustomerCoords  Coordinates         `gorm:"type:jsonb;serializer:json" json:"customer_coords,omitempty"`
	CustomerName    string              `gorm:"size:255" json:"customer_name,omitempty"`
	CustomerPhone   string              `gorm:"size:50" json:"customer_phone,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// StatusEntry is one row of the append-only status audit log
type StatusEntry struct {
	Status    enum.OrderStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     string           `json:"actor,omitempty"`
}

// OrderLineItem is an immutable line of an order. Price and quantity are optional
// so that partially captured orders still load; billing treats missing values as 0.
type OrderLineItem struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Quantity    *int                `json:"quantity"`
	CategoryRef string              `json:"category_ref,omitempty"`
}

// ExtraCharge is a service/packaging/etc. fee attached to an order
type ExtraCharge struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Amount     decimal.NullDecimal `json:"amount"`
	ChargeType enum.ChargeType     `json:"charge_type"`
}

// DeliveryInfo is the outcome of the delivery estimator captured at order time
type DeliveryInfo struct {
	DistanceKm   decimal.Decimal `json:"distance_km"`
	RatePerKm    decimal.Decimal `json:"rate_per_km"`
	Cost         decimal.Decimal `json:"cost"`
	IsOutOfRange bool            `json:"is_out_of_range"`
}

// Coordinates is a [latitude, longitude] pair
type Coordinates []float64

// Valid reports whether c is a well-formed, finite, in-range lat/lng pair
func (c Coordinates) Valid() bool {
	if len(c) != 2 {
		return false
	}
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c[0] >= -90 && c[0] <= 90 && c[1] >= -180 && c[1] <= 180
}

func (c Coordinates) Lat() float64 { return c[0] }

func (c Coordinates) Lng() float64 { return c[1] }

// BeforeCreate generates a UUID before creating a new order
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// Validate checks the structural rules of a new order: a known type and
// exactly one of table number / delivery address matching that type.
func (o *Order) Validate() []apperror.FieldError {
	var errs []apperror.FieldError
	hasTable := o.TableNumber != nil && *o.TableNumber != ""
	hasAddress := o.DeliveryAddress != nil && *o.DeliveryAddress != ""

	switch o.Type {
	case enum.OrderTypeTable:
		if !hasTable {
			errs = append(errs, apperror.FieldError{Field: "table_number", Message: "table_number is required for table orders"})
		}
		if hasAddress {
			errs = append(errs, apperror.FieldError{Field: "delivery_address", Message: "delivery_address is not allowed for table orders"})
		}
	case enum.OrderTypeDelivery:
		if !hasAddress {
			errs = append(errs, apperror.FieldError{Field: "delivery_address", Message: "delivery_address is required for delivery orders"})
		}
		if hasTable {
			errs = append(errs, apperror.FieldError{Field: "table_number", Message: "table_number is not allowed for delivery orders"})
		}
		if !o.CustomerCoords.Valid() {
			errs = append(errs, apperror.FieldError{Field: "customer_coords", Message: "customer_coords must be a [lat, lng] pair"})
		}
	case enum.OrderTypePOS:
		if hasTable && hasAddress {
			errs = append(errs, apperror.FieldError{Field: "table_number", Message: "set either table_number or delivery_address, not both"})
		}
	default:
		errs = append(errs, apperror.FieldError{Field: "type", Message: "type must be one of table, delivery, pos"})
	}

	if len(o.Items) == 0 {
		errs = append(errs, apperror.FieldError{Field: "items", Message: "at least one item is required"})
	}
	return errs
}

// ApplyTransition moves the order to next and appends the matching history entry.
// Re-applying the current status is a no-op and returns a nil entry. Timestamps are
// kept strictly increasing even if the clock reads the same instant twice.
func (o *Order) ApplyTransition(next enum.OrderStatus, actor string, now time.Time) (*StatusEntry, error) {
	if next == o.Status {
		return nil, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, apperror.NewIllegalTransitionError(o.Status.String(), next.String())
	}

	if n := len(o.StatusHistory); n > 0 {
		if last := o.StatusHistory[n-1].Timestamp; !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}

	entry := StatusEntry{Status: next, Timestamp: now, Actor: actor}
	o.StatusHistory = append(o.StatusHistory, entry)
	o.Status = next
	return &entry, nil
}

// UndoLastTransition reverts the most recent ApplyTransition
func (o *Order) UndoLastTransition() {
	n := len(o.StatusHistory)
	if n < 2 {
		return
	}
	o.StatusHistory = o.StatusHistory[:n-1]
	o.Status = o.StatusHistory[n-2].Status
}

// Clone returns a deep copy so callers can hand the order to other goroutines
func (o *Order) Clone() *Order {
	c := *o
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	c.Items = make([]OrderLineItem, len(o.Items))
	for i, item := range o.Items {
		c.Items[i] = item
		if item.Quantity != nil {
			q := *item.Quantity
			c.Items[i].Quantity = &q
		}
	}
	c.ExtraCharges = append([]ExtraCharge(nil), o.ExtraCharges...)
	c.CustomerCoords = append(Coordinates(nil), o.CustomerCoords...)
	if o.Delivery != nil {
		d := *o.Delivery
		c.Delivery = &d
	}
	if o.TableNumber != nil {
		t := *o.TableNumber
		c.TableNumber = &t
	}
	if o.DeliveryAddress != nil {
		a := *o.DeliveryAddress
		c.DeliveryAddress = &a
	}
	return &c
}
