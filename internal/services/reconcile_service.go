// internal/services/reconcile_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/database"
	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/oracle"
)

// ReconcileService drives payment detection. A worker pool fans address
// lookups out to the chain oracle; a single applier goroutine writes every
// result back, so all ledger mutations for a cycle happen on one writer.
type ReconcileService struct {
	db       *gorm.DB
	config   *config.Config
	oracle   oracle.ChainOracle
	notifier *NotificationService

	mu sync.Mutex // one cycle at a time; ticker and manual trigger may overlap
}

// ReconcileSummary reports one reconciliation cycle.
type ReconcileSummary struct {
	Checked   int           `json:"checked"`
	Updated   int           `json:"updated"`
	Confirmed int           `json:"confirmed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ms"`
}

type pollResult struct {
	payment models.Payment
	status  *oracle.AddressStatus
	err     error
}

func NewReconcileService(db *gorm.DB, cfg *config.Config, chain oracle.ChainOracle, notifier *NotificationService) *ReconcileService {
	return &ReconcileService{
		db:       db,
		config:   cfg,
		oracle:   chain,
		notifier: notifier,
	}
}

// Run executes one reconciliation cycle over every awaiting payment. A
// payment whose oracle lookup fails is skipped and picked up again next
// cycle; one bad address never aborts the sweep.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()

	var settings models.WalletSettings
	if err := s.db.First(&settings, "id = ?", models.WalletSettingsID).Error; err != nil {
		return nil, fmt.Errorf("wallet settings not found: %w", err)
	}

	var payments []models.Payment
	if err := s.db.Where("status = ?", models.PaymentStatusAwaiting).Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list awaiting payments: %w", err)
	}

	summary := &ReconcileSummary{Checked: len(payments)}
	if len(payments) == 0 {
		summary.Duration = time.Since(started)
		return summary, nil
	}

	workers := s.config.Oracle.Workers
	if workers < 1 {
		workers = 1
	}
	timeout := time.Duration(s.config.Oracle.Timeout) * time.Second

	jobs := make(chan models.Payment)
	results := make(chan pollResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payment := range jobs {
				pollCtx, cancel := context.WithTimeout(ctx, timeout)
				status, err := s.oracle.CheckAddressStatus(pollCtx, payment.Address)
				cancel()
				results <- pollResult{payment: payment, status: status, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, payment := range payments {
			select {
			case jobs <- payment:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		if result.err != nil {
			summary.Failed++
			logrus.WithError(result.err).WithFields(logrus.Fields{
				"order_id": result.payment.OrderID,
				"address":  result.payment.Address,
			}).Warn("Address poll failed, will retry next cycle")
			continue
		}

		updated, confirmed, err := s.apply(&result.payment, result.status, settings.RequiredConfirmations)
		if err != nil {
			summary.Failed++
			logrus.WithError(err).WithField("order_id", result.payment.OrderID).Error("Failed to apply poll result")
			continue
		}
		if updated {
			summary.Updated++
		}
		if confirmed {
			summary.Confirmed++
		}
	}

	summary.Duration = time.Since(started)
	logrus.WithFields(logrus.Fields{
		"checked":   summary.Checked,
		"updated":   summary.Updated,
		"confirmed": summary.Confirmed,
		"failed":    summary.Failed,
		"duration":  summary.Duration,
	}).Info("Reconciliation cycle completed")

	return summary, ctx.Err()
}

// apply writes one observation back to the ledger. Received totals are
// monotonic: a lower figure from the oracle (reorg, lagging upstream) never
// shrinks what the ledger already recorded, and an already confirmed payment
// is never demoted.
func (s *ReconcileService) apply(payment *models.Payment, status *oracle.AddressStatus, requiredConfirmations int) (updated, confirmed bool, err error) {
	var order models.Order
	var escrow models.EscrowTransaction

	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var current models.Payment
		if err := tx.First(&current, "id = ?", payment.ID).Error; err != nil {
			return fmt.Errorf("payment not found: %w", err)
		}
		if current.Status != models.PaymentStatusAwaiting {
			return nil
		}

		received := status.ReceivedSats
		if received < current.ReceivedSats {
			received = current.ReceivedSats
		}

		now := time.Now().UTC()
		changes := map[string]interface{}{
			"received_sats":  received,
			"confirmations":  status.Confirmations,
			"last_polled_at": now,
		}
		if status.TxID != "" {
			changes["last_txid"] = status.TxID
		}
		if received != current.ReceivedSats || status.Confirmations != current.Confirmations {
			updated = true
		}

		if !current.Confirmable(received, status.Confirmations, requiredConfirmations) {
			return tx.Model(&models.Payment{}).Where("id = ?", current.ID).Updates(changes).Error
		}

		changes["status"] = models.PaymentStatusConfirmed
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", current.ID, models.PaymentStatusAwaiting).
			Updates(changes)
		if res.Error != nil {
			return fmt.Errorf("failed to confirm payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// A concurrent cycle confirmed it already.
			return nil
		}

		if err := tx.First(&order, "id = ?", current.OrderID).Error; err != nil {
			return fmt.Errorf("order not found: %w", err)
		}
		orderRes := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusAwaiting).
			Updates(map[string]interface{}{
				"status":        models.OrderStatusInEscrow,
				"received_sats": received,
				"confirmations": status.Confirmations,
			})
		if orderRes.Error != nil {
			return fmt.Errorf("failed to advance order: %w", orderRes.Error)
		}

		autoReleaseAt := now.Add(s.config.Escrow.GracePeriod())
		escrowRes := tx.Model(&models.EscrowTransaction{}).
			Where("order_id = ? AND status = ?", order.ID, models.EscrowStatusPending).
			Updates(map[string]interface{}{
				"status":          models.EscrowStatusFunded,
				"funded_at":       now,
				"auto_release_at": autoReleaseAt,
			})
		if escrowRes.Error != nil {
			return fmt.Errorf("failed to fund escrow: %w", escrowRes.Error)
		}
		if err := tx.First(&escrow, "order_id = ?", order.ID).Error; err != nil {
			return fmt.Errorf("escrow not found: %w", err)
		}

		confirmed = true
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if confirmed {
		logrus.WithFields(logrus.Fields{
			"order_id":      order.ID,
			"order_number":  order.OrderNumber,
			"received_sats": status.ReceivedSats,
			"confirmations": status.Confirmations,
		}).Info("Payment confirmed, escrow funded")
		s.notifier.SendPaymentConfirmed(&order)
	}
	return updated, confirmed, nil
}

// ConfirmationsRequired exposes the persisted confirmation threshold.
func (s *ReconcileService) ConfirmationsRequired() (int, error) {
	var settings models.WalletSettings
	if err := s.db.First(&settings, "id = ?", models.WalletSettingsID).Error; err != nil {
		return 0, fmt.Errorf("wallet settings not found: %w", err)
	}
	return settings.RequiredConfirmations, nil
}
