package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"go.uber.org/zap"
)

// PaymentSignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const PaymentSignatureHeader = "X-Payment-Signature"

const maxWebhookBody = 64 << 10

// PaymentHandler receives payment gateway callbacks
type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, logger: logger}
}

// Webhook verifies the signature over the raw body before decoding it
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "Invalid webhook body")
		return
	}

	if err := h.paymentService.VerifySignature(body, c.GetHeader(PaymentSignatureHeader)); err != nil {
		h.logger.Warn("rejected payment webhook", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		response.Error(c, err)
		return
	}

	var event service.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(c, "Invalid webhook payload")
		return
	}
	if event.EventType == "" || event.OrderID == uuid.Nil {
		response.BadRequest(c, "event_type and order_id are required")
		return
	}

	order, err := h.paymentService.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Payment event processed", order)
}
