// Package billing derives an order's charge breakdown. Every surface that shows
// a total gets it from here; nothing else adds up money.
package billing

import (
	"fmt"

	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// nonNegative returns the value of d, or zero when it is missing or negative
func nonNegative(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid || d.Decimal.IsNegative() {
		return decimal.Zero
	}
	return d.Decimal
}

func quantity(item entity.OrderLineItem) int64 {
	if item.Quantity == nil || *item.Quantity < 0 {
		return 0
	}
	return int64(*item.Quantity)
}

// TotalQuantity sums the quantities of all line items
func TotalQuantity(items []entity.OrderLineItem) int64 {
	var total int64
	for _, item := range items {
		total += quantity(item)
	}
	return total
}

// UnitPrice returns the item's price, or zero when it is missing or negative
func UnitPrice(item entity.OrderLineItem) decimal.Decimal {
	return nonNegative(item.UnitPrice)
}

// Quantity returns the item's quantity, or zero when it is missing or negative
func Quantity(item entity.OrderLineItem) int {
	return int(quantity(item))
}

// LineTotal is unit price times quantity for one item
func LineTotal(item entity.OrderLineItem) decimal.Decimal {
	return nonNegative(item.UnitPrice).Mul(decimal.NewFromInt(quantity(item)))
}

// FoodSubtotal is the sum of unit price times quantity over all items
func FoodSubtotal(items []entity.OrderLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// ExtraChargeContribution returns what a single charge adds to the bill.
// FLAT_FEE counts once; PER_ITEM is multiplied by the total item quantity.
func ExtraChargeContribution(items []entity.OrderLineItem, charge entity.ExtraCharge) decimal.Decimal {
	amount := nonNegative(charge.Amount)
	switch charge.ChargeType {
	case enum.ChargeTypeFlatFee:
		return amount
	case enum.ChargeTypePerItem:
		return amount.Mul(decimal.NewFromInt(TotalQuantity(items)))
	default:
		return decimal.Zero
	}
}

// ExtraChargesTotal sums the contributions of all charges
func ExtraChargesTotal(items []entity.OrderLineItem, charges []entity.ExtraCharge) decimal.Decimal {
	total := decimal.Zero
	for _, charge := range charges {
		total = total.Add(ExtraChargeContribution(items, charge))
	}
	return total
}

// TaxAmount applies the tax percentage to the food subtotal only
func TaxAmount(foodSubtotal, taxPercentage decimal.Decimal) decimal.Decimal {
	if taxPercentage.IsNegative() {
		return decimal.Zero
	}
	return foodSubtotal.Mul(taxPercentage).Div(hundred)
}

// GrandTotal adds the components and rounds half-up to 2 decimal places
func GrandTotal(food, tax, extras, delivery decimal.Decimal) decimal.Decimal {
	return food.Add(tax).Add(extras).Add(delivery).Round(2)
}

// ResolveTaxRate picks the order's own tax percentage, falling back to the partner rate
func ResolveTaxRate(order *entity.Order, settings *entity.PartnerSettings) decimal.Decimal {
	if order.TaxPercentage.Valid {
		return order.TaxPercentage.Decimal
	}
	if settings != nil {
		return settings.TaxRate
	}
	return decimal.Zero
}

// Compute derives the full breakdown for an order
func Compute(order *entity.Order, settings *entity.PartnerSettings) entity.BillingBreakdown {
	food := FoodSubtotal(order.Items)
	tax := TaxAmount(food, ResolveTaxRate(order, settings))
	extras := ExtraChargesTotal(order.Items, order.ExtraCharges)

	delivery := decimal.Zero
	if order.Delivery != nil && !order.Delivery.Cost.IsNegative() {
		delivery = order.Delivery.Cost
	}

	return entity.BillingBreakdown{
		FoodSubtotal:      food,
		TaxAmount:         tax,
		ExtraChargesTotal: extras,
		DeliveryCost:      delivery,
		GrandTotal:        GrandTotal(food, tax, extras, delivery),
	}
}

// Validate reports malformed billing data. Billing never rejects an order;
// callers log these so bad menu data is visible.
func Validate(items []entity.OrderLineItem, charges []entity.ExtraCharge) []apperror.FieldError {
	var errs []apperror.FieldError
	for i, item := range items {
		if !item.UnitPrice.Valid {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("items[%d].unit_price", i), Message: "unit_price is missing"})
		} else if item.UnitPrice.Decimal.IsNegative() {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("items[%d].unit_price", i), Message: "unit_price must not be negative"})
		}
		if item.Quantity == nil {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "quantity is missing"})
		} else if *item.Quantity < 0 {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "quantity must not be negative"})
		}
	}
	for i, charge := range charges {
		if !charge.ChargeType.IsValid() {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("extra_charges[%d].charge_type", i), Message: "charge_type must be FLAT_FEE or PER_ITEM"})
		}
		if !charge.Amount.Valid || charge.Amount.Decimal.IsNegative() {
			errs = append(errs, apperror.FieldError{Field: fmt.Sprintf("extra_charges[%d].amount", i), Message: "amount must be a non-negative number"})
		}
	}
	return errs
}
