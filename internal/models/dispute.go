// internal/models/dispute.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type DisputeStatus string

const (
	DisputeStatusOpen                   DisputeStatus = "open"
	DisputeStatusUnderReview            DisputeStatus = "under_review"
	DisputeStatusAwaitingBuyerResponse  DisputeStatus = "awaiting_buyer_response"
	DisputeStatusAwaitingVendorResponse DisputeStatus = "awaiting_vendor_response"
	DisputeStatusEscalated              DisputeStatus = "escalated"
	DisputeStatusResolvedFavorBuyer     DisputeStatus = "resolved_favor_buyer"
	DisputeStatusResolvedFavorVendor    DisputeStatus = "resolved_favor_vendor"
	DisputeStatusResolvedMutual         DisputeStatus = "resolved_mutual"
	DisputeStatusClosedNoAction         DisputeStatus = "closed_no_action"
)

type DisputeCategory string

const (
	DisputeCategoryNonDelivery    DisputeCategory = "non_delivery"
	DisputeCategoryNotAsDescribed DisputeCategory = "not_as_described"
	DisputeCategoryPartialOrder   DisputeCategory = "partial_order"
	DisputeCategoryOther          DisputeCategory = "other"
)

type DisputePriority string

const (
	DisputePriorityNormal DisputePriority = "normal"
	DisputePriorityHigh   DisputePriority = "high"
)

var disputeResolved = []DisputeStatus{
	DisputeStatusResolvedFavorBuyer,
	DisputeStatusResolvedFavorVendor,
	DisputeStatusResolvedMutual,
}

// disputeTransitions is the dispute state machine. Escalation is reachable
// from every non-terminal state, and closed_no_action from every non-terminal
// state (the auto-close sweep takes that edge).
var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen: {
		DisputeStatusUnderReview, DisputeStatusEscalated, DisputeStatusClosedNoAction,
	},
	DisputeStatusUnderReview: {
		DisputeStatusAwaitingBuyerResponse, DisputeStatusAwaitingVendorResponse,
		DisputeStatusEscalated, DisputeStatusClosedNoAction,
	},
	DisputeStatusAwaitingBuyerResponse: append([]DisputeStatus{
		DisputeStatusEscalated, DisputeStatusClosedNoAction,
	}, disputeResolved...),
	DisputeStatusAwaitingVendorResponse: append([]DisputeStatus{
		DisputeStatusEscalated, DisputeStatusClosedNoAction,
	}, disputeResolved...),
	DisputeStatusEscalated: append([]DisputeStatus{
		DisputeStatusClosedNoAction,
	}, disputeResolved...),
}

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	for _, allowed := range disputeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the dispute has reached a final state. A
// terminal dispute no longer freezes escrow release.
func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeStatusResolvedFavorBuyer, DisputeStatusResolvedFavorVendor,
		DisputeStatusResolvedMutual, DisputeStatusClosedNoAction:
		return true
	}
	return false
}

// OpenDisputeStatuses lists every non-terminal status, for freeze queries.
func OpenDisputeStatuses() []DisputeStatus {
	return []DisputeStatus{
		DisputeStatusOpen, DisputeStatusUnderReview,
		DisputeStatusAwaitingBuyerResponse, DisputeStatusAwaitingVendorResponse,
		DisputeStatusEscalated,
	}
}

type Dispute struct {
	BaseModel
	OrderID            uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	OpenedByID         uuid.UUID       `json:"opened_by_id" gorm:"type:uuid;not null"`
	Category           DisputeCategory `json:"category" gorm:"type:varchar(30);not null"`
	Reason             string          `json:"reason" gorm:"type:text;not null"`
	Status             DisputeStatus   `json:"status" gorm:"type:varchar(30);default:'open';index"`
	Priority           DisputePriority `json:"priority" gorm:"type:varchar(10);default:'normal'"`
	ResolutionDeadline time.Time       `json:"resolution_deadline"`
	AutoCloseAt        time.Time       `json:"auto_close_at" gorm:"index"`
	ResolvedAt         *time.Time      `json:"resolved_at"`
	ResolvedByID       *uuid.UUID      `json:"resolved_by_id" gorm:"type:uuid"`
	ResolutionNote     string          `json:"resolution_note" gorm:"type:text"`

	// Relationships
	Order    Order            `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	OpenedBy User             `json:"opened_by,omitempty" gorm:"foreignKey:OpenedByID"`
	Messages []DisputeMessage `json:"messages,omitempty" gorm:"foreignKey:DisputeID"`
}

// DisputeMessage is append-only and immutable once created.
type DisputeMessage struct {
	BaseModel
	DisputeID   uuid.UUID      `json:"dispute_id" gorm:"type:uuid;not null;index"`
	AuthorID    uuid.UUID      `json:"author_id" gorm:"type:uuid;not null"`
	Body        string         `json:"body" gorm:"type:text;not null"`
	Attachments pq.StringArray `json:"attachments" gorm:"type:text[]"`

	// Relationships
	Author User `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}
