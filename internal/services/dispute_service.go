// internal/services/dispute_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/database"
	"github.com/satmarket/satmarket-backend/internal/models"
)

// DisputeService owns the dispute state machine. Opening a dispute freezes
// the order's escrow until the dispute reaches a terminal state; every status
// change goes through the transition table in models.
type DisputeService struct {
	db       *gorm.DB
	config   *config.Config
	escrow   *EscrowService
	notifier *NotificationService
}

type OpenDisputeRequest struct {
	Category models.DisputeCategory `json:"category" validate:"required,oneof=non_delivery not_as_described partial_order other"`
	Reason   string                 `json:"reason" validate:"required,min=10,max=5000"`
}

type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=favor_buyer favor_vendor mutual"`
	Note       string `json:"note" validate:"max=5000"`
}

func NewDisputeService(db *gorm.DB, cfg *config.Config, escrow *EscrowService, notifier *NotificationService) *DisputeService {
	return &DisputeService{
		db:       db,
		config:   cfg,
		escrow:   escrow,
		notifier: notifier,
	}
}

// Open files a dispute on an order by its buyer or vendor. The order moves to
// disputed and the escrow is frozen in the same transaction.
func (s *DisputeService) Open(orderID, actorID uuid.UUID, req *OpenDisputeRequest) (*models.Dispute, error) {
	var order models.Order
	var dispute *models.Dispute

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("order not found: %w", err)
		}
		if actorID != order.BuyerID && actorID != order.VendorID {
			return ErrNotAuthorized
		}

		open, err := hasOpenDispute(tx, order.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrDisputeAlreadyOpen
		}

		if !order.Status.CanTransitionTo(models.OrderStatusDisputed) {
			return fmt.Errorf("%w: order is %s", models.ErrInvalidTransition, order.Status)
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("status", models.OrderStatusDisputed)
		if res.Error != nil {
			return fmt.Errorf("failed to mark order disputed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrInvalidTransition
		}

		if err := s.escrow.freezeTx(tx, order.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		priority := models.DisputePriorityNormal
		if req.Category == models.DisputeCategoryNonDelivery {
			priority = models.DisputePriorityHigh
		}

		dispute = &models.Dispute{
			OrderID:            order.ID,
			OpenedByID:         actorID,
			Category:           req.Category,
			Reason:             req.Reason,
			Status:             models.DisputeStatusOpen,
			Priority:           priority,
			ResolutionDeadline: now.Add(time.Duration(s.config.Dispute.ResolutionDeadlineDays) * 24 * time.Hour),
			AutoCloseAt:        now.Add(time.Duration(s.config.Dispute.AutoCloseDays) * 24 * time.Hour),
		}
		if err := tx.Create(dispute).Error; err != nil {
			return fmt.Errorf("failed to create dispute: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendDisputeOpened(&order, dispute)
	return dispute, nil
}

// AddMessage appends to the dispute thread. Messages are immutable and only
// accepted while the dispute is non-terminal.
func (s *DisputeService) AddMessage(disputeID, actorID uuid.UUID, actorType models.UserType, body string, attachments []string) (*models.DisputeMessage, error) {
	var dispute models.Dispute
	if err := s.db.Preload("Order").First(&dispute, "id = ?", disputeID).Error; err != nil {
		return nil, fmt.Errorf("dispute not found: %w", err)
	}

	if actorType != models.UserTypeAdmin &&
		actorID != dispute.Order.BuyerID && actorID != dispute.Order.VendorID {
		return nil, ErrNotAuthorized
	}
	if dispute.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: dispute is closed", models.ErrInvalidTransition)
	}

	message := &models.DisputeMessage{
		DisputeID:   dispute.ID,
		AuthorID:    actorID,
		Body:        body,
		Attachments: attachments,
	}
	if err := s.db.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create dispute message: %w", err)
	}

	return message, nil
}

// Get returns a dispute with its thread, enforcing party/admin visibility.
func (s *DisputeService) Get(disputeID, actorID uuid.UUID, actorType models.UserType) (*models.Dispute, error) {
	var dispute models.Dispute
	err := s.db.Preload("Order").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&dispute, "id = ?", disputeID).Error
	if err != nil {
		return nil, fmt.Errorf("dispute not found: %w", err)
	}

	if actorType != models.UserTypeAdmin &&
		actorID != dispute.Order.BuyerID && actorID != dispute.Order.VendorID {
		return nil, ErrNotAuthorized
	}

	return &dispute, nil
}

// Transition moves a dispute between review states (admin workflow). Terminal
// states are only reachable through Resolve or the auto-close sweep.
func (s *DisputeService) Transition(disputeID, adminID uuid.UUID, next models.DisputeStatus) (*models.Dispute, error) {
	if next.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is set by resolution, not review", models.ErrInvalidTransition, next)
	}

	var dispute models.Dispute
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&dispute, "id = ?", disputeID).Error; err != nil {
			return fmt.Errorf("dispute not found: %w", err)
		}
		if !dispute.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, dispute.Status, next)
		}

		res := tx.Model(&models.Dispute{}).
			Where("id = ? AND status = ?", dispute.ID, dispute.Status).
			Update("status", next)
		if res.Error != nil {
			return fmt.Errorf("failed to transition dispute: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrInvalidTransition
		}
		dispute.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

// Escalate is available to either party as well as admins.
func (s *DisputeService) Escalate(disputeID, actorID uuid.UUID, actorType models.UserType) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := s.db.Preload("Order").First(&dispute, "id = ?", disputeID).Error; err != nil {
		return nil, fmt.Errorf("dispute not found: %w", err)
	}
	if actorType != models.UserTypeAdmin &&
		actorID != dispute.Order.BuyerID && actorID != dispute.Order.VendorID {
		return nil, ErrNotAuthorized
	}
	return s.Transition(disputeID, actorID, models.DisputeStatusEscalated)
}

// Resolve closes a dispute with an outcome and settles the escrow in the same
// transaction: favor_buyer refunds, favor_vendor and mutual release (the
// split of a mutual settlement is the payout mechanism's concern).
func (s *DisputeService) Resolve(disputeID, adminID uuid.UUID, req *ResolveDisputeRequest) (*models.Dispute, error) {
	target, refund, err := resolutionTarget(req.Resolution)
	if err != nil {
		return nil, err
	}

	var dispute models.Dispute
	var order models.Order
	var escrow models.EscrowTransaction

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&dispute, "id = ?", disputeID).Error; err != nil {
			return fmt.Errorf("dispute not found: %w", err)
		}
		if !dispute.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, dispute.Status, target)
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Dispute{}).
			Where("id = ? AND status = ?", dispute.ID, dispute.Status).
			Updates(map[string]interface{}{
				"status":          target,
				"resolved_at":     now,
				"resolved_by_id":  adminID,
				"resolution_note": req.Note,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to resolve dispute: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrInvalidTransition
		}
		dispute.Status = target
		dispute.ResolvedAt = &now
		dispute.ResolvedByID = &adminID
		dispute.ResolutionNote = req.Note

		if err := tx.First(&order, "id = ?", dispute.OrderID).Error; err != nil {
			return fmt.Errorf("order not found: %w", err)
		}

		if err := s.escrow.unfreezeTx(tx, order.ID); err != nil {
			return err
		}
		if refund {
			return s.escrow.refundTx(tx, &order, &escrow)
		}
		return s.escrow.releaseTx(tx, &order, &escrow, models.ReleaseTriggerDisputeResolution, "")
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendDisputeResolved(&order, &dispute)
	if refund {
		s.notifier.SendEscrowRefunded(&order, &escrow)
	} else {
		s.notifier.SendEscrowReleased(&order, &escrow)
	}
	return &dispute, nil
}

func resolutionTarget(resolution string) (models.DisputeStatus, bool, error) {
	switch resolution {
	case "favor_buyer":
		return models.DisputeStatusResolvedFavorBuyer, true, nil
	case "favor_vendor":
		return models.DisputeStatusResolvedFavorVendor, false, nil
	case "mutual":
		return models.DisputeStatusResolvedMutual, false, nil
	default:
		return "", false, fmt.Errorf("%w: unknown resolution %q", models.ErrInvalidTransition, resolution)
	}
}

// AutoCloseSummary reports one auto-close sweep.
type AutoCloseSummary struct {
	Candidates int
	Closed     int
	Failed     int
}

// ProcessAutoCloses closes every dispute whose auto_close_at has passed and
// un-freezes the escrow, resuming the original auto-release schedule. Each
// dispute is handled in its own transaction so one failure does not hold up
// the rest.
func (s *DisputeService) ProcessAutoCloses(ctx context.Context) (*AutoCloseSummary, error) {
	now := time.Now().UTC()

	var disputes []models.Dispute
	err := s.db.
		Where("status IN ? AND auto_close_at <= ?", models.OpenDisputeStatuses(), now).
		Find(&disputes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-close candidates: %w", err)
	}

	summary := &AutoCloseSummary{Candidates: len(disputes)}
	for _, dispute := range disputes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := s.autoClose(dispute.ID); err != nil {
			summary.Failed++
			logrus.WithError(err).WithField("dispute_id", dispute.ID).Error("Auto-close failed")
			continue
		}
		summary.Closed++
	}

	if summary.Closed > 0 || summary.Failed > 0 {
		logrus.WithFields(logrus.Fields{
			"candidates": summary.Candidates,
			"closed":     summary.Closed,
			"failed":     summary.Failed,
		}).Info("Dispute auto-close sweep completed")
	}
	return summary, nil
}

func (s *DisputeService) autoClose(disputeID uuid.UUID) error {
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var dispute models.Dispute
		if err := tx.First(&dispute, "id = ?", disputeID).Error; err != nil {
			return fmt.Errorf("dispute not found: %w", err)
		}
		if dispute.Status.IsTerminal() {
			// A concurrent sweep or resolution got here first.
			return nil
		}
		if !dispute.Status.CanTransitionTo(models.DisputeStatusClosedNoAction) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, dispute.Status, models.DisputeStatusClosedNoAction)
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Dispute{}).
			Where("id = ? AND status = ?", dispute.ID, dispute.Status).
			Updates(map[string]interface{}{
				"status":      models.DisputeStatusClosedNoAction,
				"resolved_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to auto-close dispute: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return s.escrow.unfreezeTx(tx, dispute.OrderID)
	})
}
