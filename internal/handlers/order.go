// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/services"
	"github.com/satmarket/satmarket-backend/internal/utils"
)

type OrderHandler struct {
	checkoutService *services.CheckoutService
	orderService    *services.OrderService
	escrowService   *services.EscrowService
}

func NewOrderHandler(checkoutService *services.CheckoutService, orderService *services.OrderService, escrowService *services.EscrowService) *OrderHandler {
	return &OrderHandler{
		checkoutService: checkoutService,
		orderService:    orderService,
		escrowService:   escrowService,
	}
}

// POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	resp, err := h.checkoutService.CreateOrder(userID, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, resp)
}

// GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	params := utils.GetPaginationParams(c)
	orders, total, err := h.orderService.List(userID, models.UserType(userType), params)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	result := utils.CreatePaginationResult(orders, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	userType, _ := utils.GetUserTypeFromContext(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orderService.Get(orderID, userID, models.UserType(userType))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// PUT /orders/:id/ship
func (h *OrderHandler) ShipOrder(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	var req services.ShipOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	order, err := h.orderService.Ship(orderID, userID, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

type releaseEscrowRequest struct {
	ReleaseTxID string `json:"release_txid" validate:"btc_txid"`
}

// POST /orders/:id/release
//
// The buyer confirms receipt and releases escrowed funds to the vendor.
func (h *OrderHandler) ReleaseEscrow(c *gin.Context) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	var req releaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if err := h.escrowService.Release(orderID, userID, models.ReleaseTriggerManualBuyer, req.ReleaseTxID); err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "Escrow released",
	})
}

// POST /admin/orders/:id/refund
//
// Refunds a funded escrow outside dispute resolution. A disputed escrow is
// not refundable here; it settles through the dispute workflow.
func (h *OrderHandler) RefundEscrow(c *gin.Context) {
	if _, exists := utils.GetUserIDFromContext(c); !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	if err := h.escrowService.Refund(orderID); err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "Escrow refunded",
	})
}
