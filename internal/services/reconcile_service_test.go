// internal/services/reconcile_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/oracle"
)

type ReconcileServiceTestSuite struct {
	suite.Suite
	db     *gorm.DB
	cfg    *config.Config
	chain  *fakeOracle
	svc    *ReconcileService
	buyer  *models.User
	vendor *models.User
}

func (s *ReconcileServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.cfg = testConfig()
	s.chain = newFakeOracle()
	s.svc = NewReconcileService(s.db, s.cfg, s.chain, NewNotificationService(s.db, s.cfg))
	s.buyer = createUser(s.T(), s.db, models.UserTypeBuyer)
	s.vendor = createUser(s.T(), s.db, models.UserTypeVendor)
}

// createAwaitingOrder seeds an order still waiting for its payment.
func (s *ReconcileServiceTestSuite) createAwaitingOrder(address string, expected models.Satoshi) *models.Order {
	product := createProduct(s.T(), s.db, s.vendor.ID, expected)

	order := &models.Order{
		OrderNumber:      "ORD-" + address,
		BuyerID:          s.buyer.ID,
		VendorID:         s.vendor.ID,
		ProductID:        product.ID,
		Quantity:         1,
		ReceivingAddress: address,
		ExpectedSats:     expected,
		Status:           models.OrderStatusAwaiting,
	}
	s.Require().NoError(s.db.Create(order).Error)

	s.Require().NoError(s.db.Create(&models.Payment{
		OrderID:      order.ID,
		Address:      address,
		ExpectedSats: expected,
		Status:       models.PaymentStatusAwaiting,
	}).Error)

	fee := expected.MulBps(s.cfg.Escrow.PlatformFeeBps)
	s.Require().NoError(s.db.Create(&models.EscrowTransaction{
		OrderID:      order.ID,
		GrossSats:    expected,
		PlatformFee:  fee,
		VendorPayout: expected - fee,
		Status:       models.EscrowStatusPending,
	}).Error)

	return order
}

func (s *ReconcileServiceTestSuite) loadPayment(address string) *models.Payment {
	var payment models.Payment
	s.Require().NoError(s.db.First(&payment, "address = ?", address).Error)
	return &payment
}

func (s *ReconcileServiceTestSuite) TestUnderpaidStaysAwaiting() {
	order := s.createAwaitingOrder("addr_under", 100_000)
	s.chain.statuses["addr_under"] = &oracle.AddressStatus{
		ReceivedSats: 60_000, Confirmations: 6, TxID: "aa11",
	}

	summary, err := s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 1, summary.Checked)
	assert.Equal(s.T(), 1, summary.Updated)
	assert.Equal(s.T(), 0, summary.Confirmed)

	payment := s.loadPayment("addr_under")
	assert.Equal(s.T(), models.PaymentStatusAwaiting, payment.Status)
	assert.Equal(s.T(), models.Satoshi(60_000), payment.ReceivedSats)
	assert.Equal(s.T(), "aa11", payment.LastTxID)
	assert.NotNil(s.T(), payment.LastPolledAt)

	assert.Equal(s.T(), models.OrderStatusAwaiting, loadOrder(s.T(), s.db, order.ID).Status)
	assert.Equal(s.T(), models.EscrowStatusPending, loadEscrow(s.T(), s.db, order.ID).Status)
}

func (s *ReconcileServiceTestSuite) TestUnconfirmedStaysAwaiting() {
	s.createAwaitingOrder("addr_shallow", 100_000)
	s.chain.statuses["addr_shallow"] = &oracle.AddressStatus{
		ReceivedSats: 100_000, Confirmations: 1, TxID: "bb22",
	}

	summary, err := s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 0, summary.Confirmed)
	assert.Equal(s.T(), models.PaymentStatusAwaiting, s.loadPayment("addr_shallow").Status)
}

func (s *ReconcileServiceTestSuite) TestConfirmationFundsEscrow() {
	order := s.createAwaitingOrder("addr_paid", 100_000)
	s.chain.statuses["addr_paid"] = &oracle.AddressStatus{
		ReceivedSats: 100_000, Confirmations: 3, TxID: "cc33",
	}

	before := time.Now().UTC()
	summary, err := s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 1, summary.Confirmed)

	payment := s.loadPayment("addr_paid")
	assert.Equal(s.T(), models.PaymentStatusConfirmed, payment.Status)

	got := loadOrder(s.T(), s.db, order.ID)
	assert.Equal(s.T(), models.OrderStatusInEscrow, got.Status)
	assert.Equal(s.T(), models.Satoshi(100_000), got.ReceivedSats)

	escrow := loadEscrow(s.T(), s.db, order.ID)
	assert.Equal(s.T(), models.EscrowStatusFunded, escrow.Status)
	s.Require().NotNil(escrow.FundedAt)
	s.Require().NotNil(escrow.AutoReleaseAt)
	assert.False(s.T(), escrow.FundedAt.Before(before.Add(-time.Second)))
	assert.WithinDuration(s.T(),
		escrow.FundedAt.Add(s.cfg.Escrow.GracePeriod()), *escrow.AutoReleaseAt, time.Second)
}

func (s *ReconcileServiceTestSuite) TestOverpaymentConfirms() {
	order := s.createAwaitingOrder("addr_over", 100_000)
	s.chain.statuses["addr_over"] = &oracle.AddressStatus{
		ReceivedSats: 130_000, Confirmations: 4, TxID: "dd44",
	}

	_, err := s.svc.Run(context.Background())
	s.Require().NoError(err)

	assert.Equal(s.T(), models.PaymentStatusConfirmed, s.loadPayment("addr_over").Status)
	assert.Equal(s.T(), models.Satoshi(130_000), loadOrder(s.T(), s.db, order.ID).ReceivedSats)
}

func (s *ReconcileServiceTestSuite) TestRepeatedRunIsIdempotent() {
	order := s.createAwaitingOrder("addr_idem", 100_000)
	s.chain.statuses["addr_idem"] = &oracle.AddressStatus{
		ReceivedSats: 100_000, Confirmations: 3, TxID: "ee55",
	}

	_, err := s.svc.Run(context.Background())
	s.Require().NoError(err)

	escrow := loadEscrow(s.T(), s.db, order.ID)
	fundedAt := *escrow.FundedAt
	autoReleaseAt := *escrow.AutoReleaseAt

	// Second cycle sees no awaiting payments; nothing moves.
	summary, err := s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 0, summary.Checked)

	again := loadEscrow(s.T(), s.db, order.ID)
	assert.Equal(s.T(), fundedAt, *again.FundedAt)
	assert.Equal(s.T(), autoReleaseAt, *again.AutoReleaseAt)
}

func (s *ReconcileServiceTestSuite) TestOracleFailureIsolated() {
	s.createAwaitingOrder("addr_bad", 100_000)
	good := s.createAwaitingOrder("addr_good", 100_000)

	s.chain.failing["addr_bad"] = true
	s.chain.statuses["addr_good"] = &oracle.AddressStatus{
		ReceivedSats: 100_000, Confirmations: 3, TxID: "ff66",
	}

	summary, err := s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 2, summary.Checked)
	assert.Equal(s.T(), 1, summary.Confirmed)
	assert.Equal(s.T(), 1, summary.Failed)

	assert.Equal(s.T(), models.PaymentStatusAwaiting, s.loadPayment("addr_bad").Status)
	assert.Equal(s.T(), models.OrderStatusInEscrow, loadOrder(s.T(), s.db, good.ID).Status)

	// The failed address is retried on the next cycle.
	s.chain.failing["addr_bad"] = false
	s.chain.statuses["addr_bad"] = &oracle.AddressStatus{
		ReceivedSats: 100_000, Confirmations: 3, TxID: "gg77",
	}
	summary, err = s.svc.Run(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 1, summary.Confirmed)
}

func (s *ReconcileServiceTestSuite) TestReceivedTotalNeverShrinks() {
	s.createAwaitingOrder("addr_mono", 100_000)
	s.chain.statuses["addr_mono"] = &oracle.AddressStatus{
		ReceivedSats: 80_000, Confirmations: 1, TxID: "hh88",
	}

	_, err := s.svc.Run(context.Background())
	s.Require().NoError(err)

	// Lagging upstream reports a lower figure next cycle.
	s.chain.statuses["addr_mono"] = &oracle.AddressStatus{
		ReceivedSats: 50_000, Confirmations: 0, TxID: "hh88",
	}
	_, err = s.svc.Run(context.Background())
	s.Require().NoError(err)

	assert.Equal(s.T(), models.Satoshi(80_000), s.loadPayment("addr_mono").ReceivedSats)
}

func TestReconcileServiceSuite(t *testing.T) {
	suite.Run(t, new(ReconcileServiceTestSuite))
}
