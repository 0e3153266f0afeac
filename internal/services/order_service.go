// internal/services/order_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/utils"
)

type OrderService struct {
	db       *gorm.DB
	config   *config.Config
	notifier *NotificationService
}

type ShipOrderRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=100"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

func NewOrderService(db *gorm.DB, cfg *config.Config, notifier *NotificationService) *OrderService {
	return &OrderService{
		db:       db,
		config:   cfg,
		notifier: notifier,
	}
}

// Get returns an order with its payment and escrow records. Buyers and
// vendors see their own orders, admins see everything.
func (s *OrderService) Get(orderID, actorID uuid.UUID, actorType models.UserType) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Product").Preload("Payment").Preload("Escrow").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, fmt.Errorf("order not found: %w", err)
	}

	if actorType != models.UserTypeAdmin &&
		actorID != order.BuyerID && actorID != order.VendorID {
		return nil, ErrNotAuthorized
	}

	return &order, nil
}

// List returns the actor's orders, newest first.
func (s *OrderService) List(actorID uuid.UUID, actorType models.UserType, params *utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{})
	switch actorType {
	case models.UserTypeAdmin:
	case models.UserTypeVendor:
		query = query.Where("vendor_id = ?", actorID)
	default:
		query = query.Where("buyer_id = ?", actorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	err := query.Preload("Product").
		Order("created_at DESC").
		Offset(params.Offset()).Limit(params.Limit()).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

// Ship records shipment details. Only the order's vendor may ship, and only
// once the payment has cleared into escrow.
func (s *OrderService) Ship(orderID, actorID uuid.UUID, req *ShipOrderRequest) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("order not found: %w", err)
	}
	if actorID != order.VendorID {
		return nil, ErrNotAuthorized
	}
	if !order.Status.CanTransitionTo(models.OrderStatusShipped) {
		return nil, fmt.Errorf("%w: order is %s", models.ErrInvalidTransition, order.Status)
	}

	now := time.Now().UTC()
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]interface{}{
			"status":           models.OrderStatusShipped,
			"shipping_carrier": req.Carrier,
			"tracking_number":  req.TrackingNumber,
			"shipped_at":       now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark order shipped: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrInvalidTransition
	}

	order.Status = models.OrderStatusShipped
	order.ShippingCarrier = req.Carrier
	order.TrackingNumber = req.TrackingNumber
	order.ShippedAt = &now

	s.notifier.SendOrderShipped(&order)
	return &order, nil
}
