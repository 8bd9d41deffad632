package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/request"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
)

// DeliveryHandler prices deliveries before an order is placed
type DeliveryHandler struct {
	deliveryService *service.DeliveryService
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(deliveryService *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService}
}

// Estimate returns distance, cost and range for a customer location
func (h *DeliveryHandler) Estimate(c *gin.Context) {
	var req request.DeliveryEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	info, err := h.deliveryService.EstimateForPartner(c.Request.Context(), middleware.GetPartnerID(c), entity.Coordinates(req.CustomerCoords))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Delivery estimated successfully", info)
}
