package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
)

// PrinterHandler handles printer-related HTTP requests.
type PrinterHandler struct {
	printerService *service.PrinterService
}

// NewPrinterHandler creates a new printer handler.
func NewPrinterHandler(printerService *service.PrinterService) *PrinterHandler {
	return &PrinterHandler{printerService: printerService}
}

// GetStatus returns the current printer connection status.
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	status := h.printerService.GetStatus(c.Request.Context())
	response.OK(c, "Printer status retrieved", status)
}

// PrintBill prints the customer bill for an order.
func (h *PrinterHandler) PrintBill(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}

	receipt, err := h.printerService.PrintBill(c.Request.Context(), middleware.GetPartnerID(c), id)
	if err != nil {
		// The bill is still returned so the staff screen can show it
		if receipt != nil {
			response.OK(c, "Bill generated but printing failed", gin.H{
				"receipt": receipt,
				"warning": err.Error(),
			})
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, "Bill printed successfully", gin.H{"receipt": receipt})
}

// PrintKitchenTicket prints the kitchen order ticket for an order.
func (h *PrinterHandler) PrintKitchenTicket(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.BadRequest(c, "Invalid order ID")
		return
	}

	ticket, err := h.printerService.PrintKitchenTicket(c.Request.Context(), middleware.GetPartnerID(c), id)
	if err != nil {
		if ticket != nil {
			response.OK(c, "Kitchen ticket generated but printing failed", gin.H{
				"ticket":  ticket,
				"warning": err.Error(),
			})
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, "Kitchen ticket printed successfully", gin.H{"ticket": ticket})
}
