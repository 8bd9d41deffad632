package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/request"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
)

// SettingsHandler handles partner settings HTTP requests
type SettingsHandler struct {
	partnerService *service.PartnerService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(partnerService *service.PartnerService) *SettingsHandler {
	return &SettingsHandler{partnerService: partnerService}
}

// GetSettings retrieves the partner's settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.partnerService.GetSettings(c.Request.Context(), middleware.GetPartnerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Settings retrieved successfully", settings)
}

// UpdateSettings updates the partner's settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req request.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	settings, err := h.partnerService.UpdateSettings(c.Request.Context(), middleware.GetPartnerID(c), &service.UpdateSettingsInput{
		StoreName:           req.StoreName,
		Address:             req.Address,
		Phone:               req.Phone,
		TaxID:               req.TaxID,
		Currency:            req.Currency,
		CurrencySymbol:      req.CurrencySymbol,
		TaxRate:             req.TaxRate,
		TaxLabel:            req.TaxLabel,
		DeliveryEnabled:     req.DeliveryEnabled,
		Location:            entity.Coordinates(req.Location),
		DeliveryRatePerKm:   req.DeliveryRatePerKm,
		MaxDeliveryRadiusKm: req.MaxDeliveryRadiusKm,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Settings updated successfully", settings)
}
