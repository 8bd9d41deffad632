package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentActor is recorded in the status history for gateway-driven transitions
const PaymentActor = "payment-gateway"

// Payment event types sent by the gateway
const (
	PaymentEventCaptured = "payment.captured"
	PaymentEventFailed   = "payment.failed"
)

var (
	// ErrInvalidSignature is returned when a webhook body does not match its signature
	ErrInvalidSignature = apperror.NewAppError(http.StatusUnauthorized, "Invalid webhook signature")
	// ErrAmountMismatch is returned when the captured amount differs from the bill
	ErrAmountMismatch = apperror.NewAppError(http.StatusUnprocessableEntity, "Captured amount does not match the order total")
)

// PaymentEvent is the payment confirmation callback body
type PaymentEvent struct {
	EventType        string              `json:"event_type" binding:"required"`
	OrderID          uuid.UUID           `json:"order_id" binding:"required"`
	PaymentReference string              `json:"payment_reference"`
	Amount           decimal.NullDecimal `json:"amount"`
	EventTimestamp   int64               `json:"event_timestamp"`
}

// PaymentService applies payment gateway callbacks to orders
type PaymentService struct {
	orders *OrderService
	secret []byte
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(orders *OrderService, webhookSecret string, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		orders: orders,
		secret: []byte(webhookSecret),
		logger: logger,
	}
}

func (s *PaymentService) mac(body []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the hex HMAC-SHA256 of body under the webhook secret
func (s *PaymentService) Sign(body []byte) string {
	return hex.EncodeToString(s.mac(body))
}

// VerifySignature checks the signature header against the raw body
func (s *PaymentService) VerifySignature(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return apperror.NewAppError(http.StatusServiceUnavailable, "Payment webhook is not configured")
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, s.mac(body)) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleEvent completes the order on a captured payment. Failed payments are
// logged and leave the order untouched. Replays of a captured event are no-ops.
func (s *PaymentService) HandleEvent(ctx context.Context, event *PaymentEvent) (*entity.OrderAggregate, error) {
	log := s.logger.With(
		zap.String("order_id", event.OrderID.String()),
		zap.String("event_type", event.EventType),
		zap.String("payment_reference", event.PaymentReference),
	)

	switch event.EventType {
	case PaymentEventCaptured:
	case PaymentEventFailed:
		log.Warn("payment failed")
		return s.orders.GetAggregate(ctx, event.OrderID)
	default:
		return nil, apperror.NewBadRequestError("Unsupported payment event type")
	}

	if event.Amount.Valid {
		agg, err := s.orders.GetAggregate(ctx, event.OrderID)
		if err != nil {
			return nil, err
		}
		if !event.Amount.Decimal.Round(2).Equal(agg.Billing.GrandTotal) {
			log.Warn("captured amount does not match bill",
				zap.String("captured", event.Amount.Decimal.String()),
				zap.String("grand_total", agg.Billing.GrandTotal.String()),
			)
			return nil, ErrAmountMismatch
		}
	}

	agg, err := s.orders.Transition(ctx, event.OrderID, enum.OrderStatusCompleted, PaymentActor)
	if err != nil {
		log.Warn("payment could not complete order", zap.Error(err))
		return nil, err
	}
	log.Info("order paid")
	return agg, nil
}
