// internal/models/escrow.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusDisputed EscrowStatus = "disputed"
)

type ReleaseTrigger string

const (
	ReleaseTriggerManualBuyer       ReleaseTrigger = "manual_buyer"
	ReleaseTriggerAutoTimer         ReleaseTrigger = "auto_timer"
	ReleaseTriggerDisputeResolution ReleaseTrigger = "dispute_resolution"
)

// escrowTransitions: disputed → funded is the un-freeze edge taken when a
// dispute reaches a terminal state; any dispute-driven release or refund
// passes through funded first, so the funded → released/refunded guards hold
// everywhere.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusPending:  {EscrowStatusFunded},
	EscrowStatusFunded:   {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusDisputed},
	EscrowStatusDisputed: {EscrowStatusFunded},
}

func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// EscrowTransaction holds the funds ledger for exactly one order.
type EscrowTransaction struct {
	BaseModel
	OrderID       uuid.UUID      `json:"order_id" gorm:"type:uuid;not null;uniqueIndex"`
	GrossSats     Satoshi        `json:"gross_sats" gorm:"type:bigint;not null"`
	PlatformFee   Satoshi        `json:"platform_fee_sats" gorm:"type:bigint;not null"`
	VendorPayout  Satoshi        `json:"vendor_payout_sats" gorm:"type:bigint;not null"`
	Status        EscrowStatus   `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	FundedAt      *time.Time     `json:"funded_at"`
	AutoReleaseAt *time.Time     `json:"auto_release_at" gorm:"index"`
	ReleasedAt    *time.Time     `json:"released_at"`
	ReleaseTxID   string         `json:"release_txid" gorm:"size:64"`
	Trigger       ReleaseTrigger `json:"release_trigger" gorm:"type:varchar(30)"`

	// Relationships
	Order Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

// AutoReleaseEligible is the pure eligibility predicate: the grace period has
// elapsed and the escrow is still funded. Callers must additionally verify no
// open dispute exists before acting on it.
func (e *EscrowTransaction) AutoReleaseEligible(now time.Time) bool {
	return e.Status == EscrowStatusFunded &&
		e.AutoReleaseAt != nil &&
		!now.Before(*e.AutoReleaseAt)
}
