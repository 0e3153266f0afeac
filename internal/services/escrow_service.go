// internal/services/escrow_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/database"
	"github.com/satmarket/satmarket-backend/internal/models"
)

// EscrowService executes releases and refunds. Every mutation is a
// compare-and-set on the current escrow status, so a duplicate invocation
// (overlapping sweep ticks, a retried request) is a no-op rather than a
// double payout.
type EscrowService struct {
	db       *gorm.DB
	config   *config.Config
	notifier *NotificationService
}

func NewEscrowService(db *gorm.DB, cfg *config.Config, notifier *NotificationService) *EscrowService {
	return &EscrowService{
		db:       db,
		config:   cfg,
		notifier: notifier,
	}
}

// hasOpenDispute reports whether a non-terminal dispute references the order.
// Evaluated inside the same transaction as the release it guards.
func hasOpenDispute(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.Dispute{}).
		Where("order_id = ? AND status IN ?", orderID, models.OpenDisputeStatuses()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check for open disputes: %w", err)
	}
	return count > 0, nil
}

// Release pays the vendor. The actor is checked against the order's buyer for
// manual releases; auto-timer and dispute-resolution triggers act as the
// system.
func (s *EscrowService) Release(orderID, actorID uuid.UUID, trigger models.ReleaseTrigger, releaseTxID string) error {
	var order models.Order
	var escrow models.EscrowTransaction

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("order not found: %w", err)
		}
		if trigger == models.ReleaseTriggerManualBuyer && actorID != order.BuyerID {
			return ErrNotAuthorized
		}
		return s.releaseTx(tx, &order, &escrow, trigger, releaseTxID)
	})
	if err != nil {
		return err
	}

	s.notifier.SendEscrowReleased(&order, &escrow)
	return nil
}

// releaseTx performs the guarded funded → released transition. Exposed to the
// dispute engine via ReleaseResolved so resolution happens in one transaction
// with the dispute's own state change.
func (s *EscrowService) releaseTx(tx *gorm.DB, order *models.Order, escrow *models.EscrowTransaction, trigger models.ReleaseTrigger, releaseTxID string) error {
	frozen, err := hasOpenDispute(tx, order.ID)
	if err != nil {
		return err
	}
	if frozen {
		return ErrEscrowFrozen
	}

	if err := tx.First(escrow, "order_id = ?", order.ID).Error; err != nil {
		return fmt.Errorf("escrow not found: %w", err)
	}
	if escrow.Status != models.EscrowStatusFunded {
		return ErrEscrowNotReleasable
	}

	now := time.Now().UTC()
	res := tx.Model(&models.EscrowTransaction{}).
		Where("order_id = ? AND status = ?", order.ID, models.EscrowStatusFunded).
		Updates(map[string]interface{}{
			"status":        models.EscrowStatusReleased,
			"released_at":   now,
			"release_tx_id": releaseTxID,
			"trigger":       trigger,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEscrowNotReleasable
	}

	escrow.Status = models.EscrowStatusReleased
	escrow.ReleasedAt = &now
	escrow.ReleaseTxID = releaseTxID
	escrow.Trigger = trigger

	return s.completeOrder(tx, order, now)
}

// Refund returns the full gross amount to the buyer. Mutually exclusive with
// Release through the same funded-status compare-and-set.
func (s *EscrowService) Refund(orderID uuid.UUID) error {
	var order models.Order
	var escrow models.EscrowTransaction

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("order not found: %w", err)
		}
		return s.refundTx(tx, &order, &escrow)
	})
	if err != nil {
		return err
	}

	s.notifier.SendEscrowRefunded(&order, &escrow)
	return nil
}

func (s *EscrowService) refundTx(tx *gorm.DB, order *models.Order, escrow *models.EscrowTransaction) error {
	if err := tx.First(escrow, "order_id = ?", order.ID).Error; err != nil {
		return fmt.Errorf("escrow not found: %w", err)
	}
	if escrow.Status != models.EscrowStatusFunded {
		return ErrEscrowNotReleasable
	}

	now := time.Now().UTC()
	res := tx.Model(&models.EscrowTransaction{}).
		Where("order_id = ? AND status = ?", order.ID, models.EscrowStatusFunded).
		Updates(map[string]interface{}{
			"status":      models.EscrowStatusRefunded,
			"released_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refund escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEscrowNotReleasable
	}

	escrow.Status = models.EscrowStatusRefunded
	escrow.ReleasedAt = &now

	return s.completeOrder(tx, order, now)
}

// unfreezeTx takes the disputed → funded edge once the dispute that froze the
// escrow is terminal. The original auto_release_at is deliberately left
// untouched: the grace clock resumes, it does not restart.
func (s *EscrowService) unfreezeTx(tx *gorm.DB, orderID uuid.UUID) error {
	res := tx.Model(&models.EscrowTransaction{}).
		Where("order_id = ? AND status = ?", orderID, models.EscrowStatusDisputed).
		Update("status", models.EscrowStatusFunded)
	if res.Error != nil {
		return fmt.Errorf("failed to unfreeze escrow: %w", res.Error)
	}
	return nil
}

// freezeTx takes the funded → disputed edge when a dispute opens.
func (s *EscrowService) freezeTx(tx *gorm.DB, orderID uuid.UUID) error {
	res := tx.Model(&models.EscrowTransaction{}).
		Where("order_id = ? AND status = ?", orderID, models.EscrowStatusFunded).
		Update("status", models.EscrowStatusDisputed)
	if res.Error != nil {
		return fmt.Errorf("failed to freeze escrow: %w", res.Error)
	}
	return nil
}

// completeOrder advances the order once its escrow reaches a terminal state,
// where the transition table allows it.
func (s *EscrowService) completeOrder(tx *gorm.DB, order *models.Order, now time.Time) error {
	if !order.Status.CanTransitionTo(models.OrderStatusCompleted) {
		return nil
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]interface{}{
			"status":       models.OrderStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete order: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		order.Status = models.OrderStatusCompleted
		order.CompletedAt = &now
	}
	return nil
}

// AutoReleaseSummary reports one auto-release sweep.
type AutoReleaseSummary struct {
	Eligible int
	Released int
	Frozen   int
	Failed   int
}

// ProcessAutoReleases releases every funded escrow whose grace period has
// elapsed and that no open dispute freezes. Safe to run concurrently with
// itself; the per-row compare-and-set makes the loser a no-op.
func (s *EscrowService) ProcessAutoReleases(ctx context.Context) (*AutoReleaseSummary, error) {
	now := time.Now().UTC()

	var escrows []models.EscrowTransaction
	err := s.db.
		Where("status = ? AND auto_release_at IS NOT NULL AND auto_release_at <= ?", models.EscrowStatusFunded, now).
		Find(&escrows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-release candidates: %w", err)
	}

	summary := &AutoReleaseSummary{Eligible: len(escrows)}
	for _, escrow := range escrows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		err := s.Release(escrow.OrderID, uuid.Nil, models.ReleaseTriggerAutoTimer, "")
		switch {
		case err == nil:
			summary.Released++
		case errors.Is(err, ErrEscrowFrozen):
			summary.Frozen++
		case errors.Is(err, ErrEscrowNotReleasable):
			// Lost the race to a concurrent release; nothing to do.
		default:
			summary.Failed++
			logrus.WithError(err).WithField("order_id", escrow.OrderID).Error("Auto-release failed")
		}
	}

	if summary.Released > 0 || summary.Failed > 0 {
		logrus.WithFields(logrus.Fields{
			"eligible": summary.Eligible,
			"released": summary.Released,
			"frozen":   summary.Frozen,
			"failed":   summary.Failed,
		}).Info("Auto-release sweep completed")
	}
	return summary, nil
}
