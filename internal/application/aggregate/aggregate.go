// Package aggregate builds the single view model every order surface renders.
package aggregate

import (
	"github.com/sangkips/tablesync-api/internal/application/billing"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
)

// Assemble combines an order with its billing breakdown and the partner's
// display settings. Blank settings fall back to DefaultPartnerSettings.
func Assemble(order *entity.Order, settings *entity.PartnerSettings) entity.OrderAggregate {
	var s entity.PartnerSettings
	if settings != nil {
		s = *settings
	}
	s = s.WithDefaults()

	return entity.OrderAggregate{
		Order:          *order.Clone(),
		Billing:        billing.Compute(order, &s),
		TaxRate:        billing.ResolveTaxRate(order, &s),
		TaxLabel:       s.TaxLabel,
		Currency:       s.Currency,
		CurrencySymbol: s.CurrencySymbol,
		StoreName:      s.StoreName,
	}
}
