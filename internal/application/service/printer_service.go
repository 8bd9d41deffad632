package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/application/billing"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/printer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const printDateLayout = "2006-01-02 15:04"

// PrinterService renders bills and kitchen order tickets from the order
// aggregate and sends them to the thermal printer.
type PrinterService struct {
	printer     printer.Printer
	orders      *OrderService
	partners    *PartnerService
	printerType string
	width       int
	logger      *zap.Logger
}

// NewPrinterService creates a new printer service
func NewPrinterService(p printer.Printer, orders *OrderService, partners *PartnerService, cfg printer.Config, logger *zap.Logger) *PrinterService {
	width := cfg.Width
	if width <= 0 {
		width = printer.Width58mm
	}
	return &PrinterService{
		printer:     p,
		orders:      orders,
		partners:    partners,
		printerType: cfg.Type,
		width:       width,
		logger:      logger,
	}
}

// PrinterStatus returns the current printer status information
type PrinterStatus struct {
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
	Type       string `json:"type"`
	Width      int    `json:"width"`
}

// GetStatus returns printer connection status
func (s *PrinterService) GetStatus(ctx context.Context) *PrinterStatus {
	return &PrinterStatus{
		Configured: s.printerType != "none" && s.printerType != "",
		Connected:  s.printer.Ready(ctx),
		Type:       s.printerType,
		Width:      s.width,
	}
}

// PrintBill prints the customer bill for an order. The receipt is returned even
// when printing fails so the caller can fall back to an on-screen bill.
func (s *PrinterService) PrintBill(ctx context.Context, partnerID, orderID uuid.UUID) (*entity.Receipt, error) {
	agg, settings, err := s.load(ctx, partnerID, orderID)
	if err != nil {
		return nil, err
	}

	receipt := BuildReceipt(agg, settings)
	if err := s.printer.Print(ctx, FormatReceipt(receipt, s.width)); err != nil {
		s.logger.Error("failed to print bill", zap.String("order_id", orderID.String()), zap.Error(err))
		return receipt, apperror.NewExternalServiceError("Printer", err)
	}
	return receipt, nil
}

// PrintKitchenTicket prints the kitchen order ticket (KOT) for an order
func (s *PrinterService) PrintKitchenTicket(ctx context.Context, partnerID, orderID uuid.UUID) (*entity.KitchenTicket, error) {
	agg, _, err := s.load(ctx, partnerID, orderID)
	if err != nil {
		return nil, err
	}

	ticket := BuildKitchenTicket(agg)
	if err := s.printer.Print(ctx, FormatKitchenTicket(ticket, s.width)); err != nil {
		s.logger.Error("failed to print kitchen ticket", zap.String("order_id", orderID.String()), zap.Error(err))
		return ticket, apperror.NewExternalServiceError("Printer", err)
	}
	return ticket, nil
}

func (s *PrinterService) load(ctx context.Context, partnerID, orderID uuid.UUID) (*entity.OrderAggregate, *entity.PartnerSettings, error) {
	agg, err := s.orders.GetPartnerAggregate(ctx, partnerID, orderID)
	if err != nil {
		return nil, nil, err
	}
	settings, err := s.partners.GetSettings(ctx, partnerID)
	if err != nil {
		return nil, nil, err
	}
	return agg, settings, nil
}

// OrderNumber is the short order reference printed on bills and tickets
func OrderNumber(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

// BuildReceipt lays out a bill from the aggregate. Every amount comes from the
// billing calculator so the paper bill matches the screen.
func BuildReceipt(agg *entity.OrderAggregate, settings *entity.PartnerSettings) *entity.Receipt {
	r := &entity.Receipt{
		Header: entity.ReceiptHeader{
			StoreName: agg.StoreName,
			Address:   settings.Address,
			Phone:     settings.Phone,
			TaxID:     settings.TaxID,
		},
		OrderNo:        OrderNumber(agg.ID),
		Date:           agg.CreatedAt.Format(printDateLayout),
		OrderType:      strings.ToUpper(agg.Type.String()),
		Customer:       agg.CustomerName,
		Status:         agg.Status.String(),
		CurrencySymbol: agg.CurrencySymbol,
		SubTotal:       agg.Billing.FoodSubtotal,
		TaxLabel:       agg.TaxLabel,
		TaxRate:        agg.TaxRate,
		Tax:            agg.Billing.TaxAmount,
		Delivery:       agg.Billing.DeliveryCost,
		Total:          agg.Billing.GrandTotal,
	}
	if agg.TableNumber != nil {
		r.Table = *agg.TableNumber
	}
	if agg.Delivery != nil {
		r.DeliveryKm = agg.Delivery.DistanceKm
	}

	for _, item := range agg.Items {
		r.Items = append(r.Items, entity.ReceiptItem{
			Name:      item.Name,
			Quantity:  billing.Quantity(item),
			UnitPrice: billing.UnitPrice(item),
			Total:     billing.LineTotal(item),
		})
	}
	for _, charge := range agg.ExtraCharges {
		amount := billing.ExtraChargeContribution(agg.Items, charge)
		if amount.IsZero() {
			continue
		}
		r.Charges = append(r.Charges, entity.ReceiptCharge{Name: charge.Name, Amount: amount})
	}
	return r
}

// BuildKitchenTicket lists what the kitchen has to prepare. It carries no prices.
func BuildKitchenTicket(agg *entity.OrderAggregate) *entity.KitchenTicket {
	t := &entity.KitchenTicket{
		StoreName: agg.StoreName,
		OrderNo:   OrderNumber(agg.ID),
		Date:      agg.CreatedAt.Format(printDateLayout),
		OrderType: strings.ToUpper(agg.Type.String()),
	}
	if agg.TableNumber != nil {
		t.Table = *agg.TableNumber
	}
	if agg.Type == enum.OrderTypeDelivery && agg.DeliveryAddress != nil {
		t.Address = *agg.DeliveryAddress
	}
	for _, item := range agg.Items {
		qty := billing.Quantity(item)
		t.Items = append(t.Items, entity.KitchenTicketItem{Name: item.Name, Quantity: qty})
		t.TotalQty += qty
	}
	return t
}

func money(symbol string, d decimal.Decimal) string {
	return symbol + d.StringFixed(2)
}

// FormatReceipt converts a Receipt into ESC/POS bytes
func FormatReceipt(r *entity.Receipt, width int) []byte {
	doc := printer.NewDocument(width)

	doc.Align(printer.AlignCenter).
		Bold(true).
		Size(printer.SizeDouble).
		Line(r.Header.StoreName).
		Size(printer.SizeNormal).
		Bold(false)
	if r.Header.Address != "" {
		doc.Line(r.Header.Address)
	}
	if r.Header.Phone != "" {
		doc.Line(r.Header.Phone)
	}
	if r.Header.TaxID != "" {
		doc.Linef("%s No: %s", r.TaxLabel, r.Header.TaxID)
	}

	doc.Align(printer.AlignLeft).Rule('-')
	doc.Pair("Order:", r.OrderNo).
		Pair("Date:", r.Date).
		Pair("Type:", r.OrderType)
	if r.Table != "" {
		doc.Pair("Table:", r.Table)
	}
	if r.Customer != "" {
		doc.Pair("Customer:", r.Customer)
	}
	doc.Rule('-')

	for _, item := range r.Items {
		doc.Item(item.Quantity, item.Name, item.Total.StringFixed(2))
		if item.Quantity > 1 {
			doc.Linef("   @ %s each", item.UnitPrice.StringFixed(2))
		}
	}
	doc.Rule('-')

	doc.Pair("Subtotal:", money(r.CurrencySymbol, r.SubTotal))
	if r.Tax.IsPositive() {
		doc.Pair(fmt.Sprintf("%s (%s%%):", r.TaxLabel, r.TaxRate.String()), money(r.CurrencySymbol, r.Tax))
	}
	for _, c := range r.Charges {
		doc.Pair(c.Name+":", money(r.CurrencySymbol, c.Amount))
	}
	if r.Delivery.IsPositive() {
		doc.Pair(fmt.Sprintf("Delivery (%s km):", r.DeliveryKm.StringFixed(2)), money(r.CurrencySymbol, r.Delivery))
	}
	doc.Bold(true).
		Pair("TOTAL:", money(r.CurrencySymbol, r.Total)).
		Bold(false).
		Rule('-')

	doc.Align(printer.AlignCenter).
		Feed(1).
		Line("Thank you, visit again!").
		Align(printer.AlignLeft).
		Cut(true)

	return doc.Bytes()
}

// FormatKitchenTicket converts a KitchenTicket into ESC/POS bytes
func FormatKitchenTicket(t *entity.KitchenTicket, width int) []byte {
	doc := printer.NewDocument(width)

	doc.Align(printer.AlignCenter).
		Bold(true).
		Line("KOT").
		Bold(false).
		Line(t.StoreName).
		Align(printer.AlignLeft).
		Rule('=')

	doc.Pair("Order:", t.OrderNo).
		Pair("Time:", t.Date).
		Pair("Type:", t.OrderType)
	if t.Table != "" {
		doc.Bold(true).Size(printer.SizeWide).Linef("TABLE %s", t.Table).Size(printer.SizeNormal).Bold(false)
	}
	if t.Address != "" {
		doc.Line("Deliver to:").Line(t.Address)
	}
	doc.Rule('-')

	doc.Bold(true)
	for _, item := range t.Items {
		doc.Item(item.Quantity, item.Name, "")
	}
	doc.Bold(false).
		Rule('-').
		Pair("Total items:", fmt.Sprintf("%d", t.TotalQty)).
		Cut(true)

	return doc.Bytes()
}
