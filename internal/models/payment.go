// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusAwaiting  PaymentStatus = "awaiting"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
)

// Payment tracks the expected inbound funds for exactly one order. The
// receiving address carries a unique index: an address is never associated
// with a second payment for the lifetime of the system.
type Payment struct {
	BaseModel
	OrderID       uuid.UUID     `json:"order_id" gorm:"type:uuid;not null;uniqueIndex"`
	Address       string        `json:"address" gorm:"size:64;not null;uniqueIndex"`
	AddressIndex  uint32        `json:"address_index" gorm:"not null"`
	ExpectedSats  Satoshi       `json:"expected_sats" gorm:"type:bigint;not null"`
	ReceivedSats  Satoshi       `json:"received_sats" gorm:"type:bigint;default:0"`
	Confirmations int           `json:"confirmations" gorm:"default:0"`
	LastTxID      string        `json:"last_txid" gorm:"column:last_txid;size:64"`
	LastPolledAt  *time.Time    `json:"last_polled_at"`
	Status        PaymentStatus `json:"status" gorm:"type:varchar(20);default:'awaiting';index"`

	// Relationships
	Order Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

// Confirmable reports whether observed chain state satisfies the payment.
func (p *Payment) Confirmable(received Satoshi, confirmations, required int) bool {
	return received >= p.ExpectedSats && confirmations >= required
}
