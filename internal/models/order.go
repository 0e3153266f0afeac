// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusAwaiting       OrderStatus = "awaiting"
	OrderStatusInEscrow       OrderStatus = "in_escrow"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusDisputed       OrderStatus = "disputed"
)

// orderTransitions is the single source of truth for legal order status
// changes. There are no reverse edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusAwaiting},
	OrderStatusAwaiting:       {OrderStatusInEscrow},
	OrderStatusInEscrow:       {OrderStatusShipped, OrderStatusDisputed, OrderStatusCompleted},
	OrderStatusShipped:        {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDisputed:       {OrderStatusCompleted},
}

// CanTransitionTo reports whether the order status machine permits the move.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further order transitions exist.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

type Order struct {
	BaseModel
	OrderNumber      string      `json:"order_number" gorm:"size:32;uniqueIndex;not null"`
	BuyerID          uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	VendorID         uuid.UUID   `json:"vendor_id" gorm:"type:uuid;not null;index"`
	ProductID        uuid.UUID   `json:"product_id" gorm:"type:uuid;not null;index"`
	Quantity         int         `json:"quantity" gorm:"not null"`
	ReceivingAddress string      `json:"receiving_address" gorm:"size:64;not null"`
	ExpectedSats     Satoshi     `json:"expected_sats" gorm:"type:bigint;not null"`
	ReceivedSats     Satoshi     `json:"received_sats" gorm:"type:bigint;default:0"`
	Confirmations    int         `json:"confirmations" gorm:"default:0"`
	Status           OrderStatus `json:"status" gorm:"type:varchar(20);default:'awaiting';index"`
	ShippingAddress  string      `json:"shipping_address" gorm:"type:text"`
	ShippingCarrier  string      `json:"shipping_carrier" gorm:"size:100"`
	TrackingNumber   string      `json:"tracking_number" gorm:"size:100"`
	ShippedAt        *time.Time  `json:"shipped_at"`
	CompletedAt      *time.Time  `json:"completed_at"`

	// Relationships
	Buyer    User               `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Vendor   User               `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
	Product  Product            `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Payment  *Payment           `json:"payment,omitempty" gorm:"foreignKey:OrderID"`
	Escrow   *EscrowTransaction `json:"escrow,omitempty" gorm:"foreignKey:OrderID"`
	Disputes []Dispute          `json:"disputes,omitempty" gorm:"foreignKey:OrderID"`
}
