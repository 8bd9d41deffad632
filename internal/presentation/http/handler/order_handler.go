package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/notifier"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/request"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/pagination"
	"go.uber.org/zap"
)

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	orderService *service.OrderService
	hub          *notifier.Hub
	logger       *zap.Logger
	heartbeat    time.Duration
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *service.OrderService, hub *notifier.Hub, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		hub:          hub,
		logger:       logger,
		heartbeat:    15 * time.Second,
	}
}

// Create handles placing a new order from the ordering flow
func (h *OrderHandler) Create(c *gin.Context) {
	var req request.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	input := &service.CreateOrderInput{
		PartnerID:       middleware.GetPartnerID(c),
		Type:            enum.OrderType(req.Type),
		TableNumber:     req.TableNumber,
		DeliveryAddress: req.DeliveryAddress,
		CustomerCoords:  entity.Coordinates(req.CustomerCoords),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		TaxIncluded:     req.TaxIncluded,
		TaxPercentage:   req.TaxPercentage,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, entity.OrderLineItem{
			ID:          item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			CategoryRef: item.CategoryRef,
		})
	}
	for _, charge := range req.ExtraCharges {
		input.ExtraCharges = append(input.ExtraCharges, entity.ExtraCharge{
			ID:         charge.ID,
			Name:       charge.Name,
			Amount:     charge.Amount,
			ChargeType: enum.ChargeType(charge.ChargeType),
		})
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Order placed successfully", order)
}

// Get handles the customer tracking view of an order
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}

	order, err := h.orderService.GetAggregate(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Order retrieved successfully", order)
}

// Billing returns the billing breakdown of an order
func (h *OrderHandler) Billing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}

	breakdown, err := h.orderService.ComputeBilling(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Billing computed successfully", breakdown)
}

// List handles the partner's order board
func (h *OrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	params := &repository.OrderFilterParams{
		Pagination: &pagination.PaginationParams{
			Page:    page,
			PerPage: perPage,
		},
		SortOrder: c.Query("sort_order"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status, err := enum.ParseOrderStatus(statusStr)
		if err != nil {
			response.BadRequest(c, "Invalid status filter")
			return
		}
		params.Status = &status
	}

	if typeStr := c.Query("type"); typeStr != "" {
		orderType := enum.OrderType(typeStr)
		if !orderType.IsValid() {
			response.BadRequest(c, "Invalid type filter")
			return
		}
		params.Type = &orderType
	}

	if startDateStr := c.Query("start_date"); startDateStr != "" {
		if startDate, err := time.Parse("2006-01-02", startDateStr); err == nil {
			params.StartDate = &startDate
		}
	}

	if endDateStr := c.Query("end_date"); endDateStr != "" {
		if endDate, err := time.Parse("2006-01-02", endDateStr); err == nil {
			end := endDate.Add(24*time.Hour - time.Nanosecond)
			params.EndDate = &end
		}
	}

	result, err := h.orderService.ListPartnerOrders(c.Request.Context(), middleware.GetPartnerID(c), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithPagination(c, 200, "Orders retrieved successfully", result)
}

// UpdateStatus handles a staff or captain status change
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}

	var req request.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	status, err := enum.ParseOrderStatus(req.Status)
	if err != nil {
		response.ValidationError(c, []apperror.FieldError{
			{Field: "status", Message: "status must be one of pending, accepted, completed, cancelled"},
		})
		return
	}

	order, err := h.orderService.TransitionForPartner(c.Request.Context(), middleware.GetPartnerID(c), id, status, Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Order status updated successfully", order)
}

// Stream pushes live snapshots of one order to the tracking page
func (h *OrderHandler) Stream(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}
	h.stream(c, notifier.Filter{OrderID: id})
}

// PartnerStream pushes live snapshots of every order of the partner to the dashboard
func (h *OrderHandler) PartnerStream(c *gin.Context) {
	h.stream(c, notifier.Filter{PartnerID: middleware.GetPartnerID(c)})
}
