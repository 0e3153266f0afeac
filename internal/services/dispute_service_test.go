// internal/services/dispute_service_test.go
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
)

type DisputeServiceTestSuite struct {
	suite.Suite
	db     *gorm.DB
	cfg    *config.Config
	escrow *EscrowService
	svc    *DisputeService
	buyer  *models.User
	vendor *models.User
	admin  *models.User
}

func (s *DisputeServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.cfg = testConfig()
	notifier := NewNotificationService(s.db, s.cfg)
	s.escrow = NewEscrowService(s.db, s.cfg, notifier)
	s.svc = NewDisputeService(s.db, s.cfg, s.escrow, notifier)
	s.buyer = createUser(s.T(), s.db, models.UserTypeBuyer)
	s.vendor = createUser(s.T(), s.db, models.UserTypeVendor)
	s.admin = createUser(s.T(), s.db, models.UserTypeAdmin)
}

func (s *DisputeServiceTestSuite) TestOpenFreezesEscrow() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)

	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryNonDelivery,
		Reason:   "nothing arrived after two weeks",
	})
	s.Require().NoError(err)

	assert.Equal(s.T(), models.DisputeStatusOpen, dispute.Status)
	assert.Equal(s.T(), models.DisputePriorityHigh, dispute.Priority)
	assert.WithinDuration(s.T(),
		time.Now().UTC().Add(7*24*time.Hour), dispute.ResolutionDeadline, time.Minute)
	assert.WithinDuration(s.T(),
		time.Now().UTC().Add(30*24*time.Hour), dispute.AutoCloseAt, time.Minute)

	assert.Equal(s.T(), models.OrderStatusDisputed, loadOrder(s.T(), s.db, order.ID).Status)
	assert.Equal(s.T(), models.EscrowStatusDisputed, loadEscrow(s.T(), s.db, order.ID).Status)
}

func (s *DisputeServiceTestSuite) TestOpenByStrangerRejected() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	stranger := createUser(s.T(), s.db, models.UserTypeBuyer)

	_, err := s.svc.Open(order.ID, stranger.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryOther,
		Reason:   "this order is not mine at all",
	})
	assert.ErrorIs(s.T(), err, ErrNotAuthorized)
}

func (s *DisputeServiceTestSuite) TestSecondOpenDisputeRejected() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)

	_, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryNonDelivery,
		Reason:   "nothing arrived after two weeks",
	})
	s.Require().NoError(err)

	_, err = s.svc.Open(order.ID, s.vendor.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryOther,
		Reason:   "buyer is refusing to confirm receipt",
	})
	assert.ErrorIs(s.T(), err, ErrDisputeAlreadyOpen)
}

func (s *DisputeServiceTestSuite) TestOpenOnAwaitingOrderRejected() {
	product := createProduct(s.T(), s.db, s.vendor.ID, 10_000)
	order := &models.Order{
		OrderNumber:      "ORD-20260101-000001",
		BuyerID:          s.buyer.ID,
		VendorID:         s.vendor.ID,
		ProductID:        product.ID,
		Quantity:         1,
		ReceivingAddress: "addr_unpaid",
		ExpectedSats:     10_000,
		Status:           models.OrderStatusAwaiting,
	}
	s.Require().NoError(s.db.Create(order).Error)

	_, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryNonDelivery,
		Reason:   "have not even paid yet but complaining",
	})
	assert.ErrorIs(s.T(), err, models.ErrInvalidTransition)
}

func (s *DisputeServiceTestSuite) TestMessageThread() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryNotAsDescribed,
		Reason:   "plates arrived bent and unusable",
	})
	s.Require().NoError(err)

	msg, err := s.svc.AddMessage(dispute.ID, s.vendor.ID, models.UserTypeVendor,
		"they were fine when shipped, see photos", []string{"evidence/key1.jpg"})
	s.Require().NoError(err)
	assert.Equal(s.T(), dispute.ID, msg.DisputeID)
	assert.Len(s.T(), msg.Attachments, 1)

	// strangers cannot post
	stranger := createUser(s.T(), s.db, models.UserTypeBuyer)
	_, err = s.svc.AddMessage(dispute.ID, stranger.ID, models.UserTypeBuyer, "hello", nil)
	assert.ErrorIs(s.T(), err, ErrNotAuthorized)

	// admins can
	_, err = s.svc.AddMessage(dispute.ID, s.admin.ID, models.UserTypeAdmin,
		"please upload the carrier receipt", nil)
	assert.NoError(s.T(), err)

	got, err := s.svc.Get(dispute.ID, s.buyer.ID, models.UserTypeBuyer)
	s.Require().NoError(err)
	assert.Len(s.T(), got.Messages, 2)
}

func (s *DisputeServiceTestSuite) TestNoMessagesAfterResolution() {
	dispute := s.resolvedDispute("favor_vendor")

	_, err := s.svc.AddMessage(dispute.ID, s.buyer.ID, models.UserTypeBuyer, "one more thing", nil)
	assert.ErrorIs(s.T(), err, models.ErrInvalidTransition)
}

func (s *DisputeServiceTestSuite) TestReviewWorkflow() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryPartialOrder,
		Reason:   "only half the plates were in the box",
	})
	s.Require().NoError(err)

	dispute, err = s.svc.Transition(dispute.ID, s.admin.ID, models.DisputeStatusUnderReview)
	s.Require().NoError(err)
	assert.Equal(s.T(), models.DisputeStatusUnderReview, dispute.Status)

	// cannot jump to a terminal state through review
	_, err = s.svc.Transition(dispute.ID, s.admin.ID, models.DisputeStatusResolvedFavorBuyer)
	assert.ErrorIs(s.T(), err, models.ErrInvalidTransition)

	// cannot skip backwards
	_, err = s.svc.Transition(dispute.ID, s.admin.ID, models.DisputeStatusOpen)
	assert.ErrorIs(s.T(), err, models.ErrInvalidTransition)
}

// resolvedDispute drives a dispute from open through review to resolution.
func (s *DisputeServiceTestSuite) resolvedDispute(resolution string) *models.Dispute {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryNotAsDescribed,
		Reason:   "plates arrived bent and unusable",
	})
	s.Require().NoError(err)

	_, err = s.svc.Transition(dispute.ID, s.admin.ID, models.DisputeStatusUnderReview)
	s.Require().NoError(err)
	_, err = s.svc.Transition(dispute.ID, s.admin.ID, models.DisputeStatusAwaitingVendorResponse)
	s.Require().NoError(err)

	dispute, err = s.svc.Resolve(dispute.ID, s.admin.ID, &ResolveDisputeRequest{
		Resolution: resolution,
		Note:       "reviewed the evidence from both parties",
	})
	s.Require().NoError(err)
	return dispute
}

func (s *DisputeServiceTestSuite) TestResolveFavorBuyerRefunds() {
	dispute := s.resolvedDispute("favor_buyer")

	assert.Equal(s.T(), models.DisputeStatusResolvedFavorBuyer, dispute.Status)
	assert.NotNil(s.T(), dispute.ResolvedAt)
	s.Require().NotNil(dispute.ResolvedByID)
	assert.Equal(s.T(), s.admin.ID, *dispute.ResolvedByID)

	escrow := loadEscrow(s.T(), s.db, dispute.OrderID)
	assert.Equal(s.T(), models.EscrowStatusRefunded, escrow.Status)

	assert.Equal(s.T(), models.OrderStatusCompleted, loadOrder(s.T(), s.db, dispute.OrderID).Status)
}

func (s *DisputeServiceTestSuite) TestResolveFavorVendorReleases() {
	dispute := s.resolvedDispute("favor_vendor")

	escrow := loadEscrow(s.T(), s.db, dispute.OrderID)
	assert.Equal(s.T(), models.EscrowStatusReleased, escrow.Status)
	assert.Equal(s.T(), models.ReleaseTriggerDisputeResolution, escrow.Trigger)
}

func (s *DisputeServiceTestSuite) TestResolveMutualReleases() {
	dispute := s.resolvedDispute("mutual")

	escrow := loadEscrow(s.T(), s.db, dispute.OrderID)
	assert.Equal(s.T(), models.EscrowStatusReleased, escrow.Status)
	assert.Equal(s.T(), models.ReleaseTriggerDisputeResolution, escrow.Trigger)
}

func (s *DisputeServiceTestSuite) TestResolveFromOpenRejected() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryOther,
		Reason:   "wrong engraving on all the plates",
	})
	s.Require().NoError(err)

	_, err = s.svc.Resolve(dispute.ID, s.admin.ID, &ResolveDisputeRequest{Resolution: "favor_buyer"})
	assert.ErrorIs(s.T(), err, models.ErrInvalidTransition)

	// escrow still frozen
	assert.Equal(s.T(), models.EscrowStatusDisputed, loadEscrow(s.T(), s.db, order.ID).Status)
}

func (s *DisputeServiceTestSuite) TestEscalateByParty() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryOther,
		Reason:   "vendor stopped responding entirely",
	})
	s.Require().NoError(err)

	dispute, err = s.svc.Escalate(dispute.ID, s.vendor.ID, models.UserTypeVendor)
	s.Require().NoError(err)
	assert.Equal(s.T(), models.DisputeStatusEscalated, dispute.Status)
}

func (s *DisputeServiceTestSuite) TestAutoCloseResumesAutoRelease() {
	order := createFundedOrder(s.T(), s.db, s.cfg, s.buyer, s.vendor)
	originalAutoRelease := *loadEscrow(s.T(), s.db, order.ID).AutoReleaseAt

	dispute, err := s.svc.Open(order.ID, s.buyer.ID, &OpenDisputeRequest{
		Category: models.DisputeCategoryOther,
		Reason:   "opened in error, buyer went silent",
	})
	s.Require().NoError(err)

	// push the auto-close deadline into the past
	s.Require().NoError(s.db.Model(&models.Dispute{}).
		Where("id = ?", dispute.ID).
		Update("auto_close_at", time.Now().UTC().Add(-time.Hour)).Error)

	summary, err := s.svc.ProcessAutoCloses(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 1, summary.Candidates)
	assert.Equal(s.T(), 1, summary.Closed)

	var got models.Dispute
	s.Require().NoError(s.db.First(&got, "id = ?", dispute.ID).Error)
	assert.Equal(s.T(), models.DisputeStatusClosedNoAction, got.Status)
	assert.NotNil(s.T(), got.ResolvedAt)

	// escrow thaws and the original grace clock resumes
	escrow := loadEscrow(s.T(), s.db, order.ID)
	assert.Equal(s.T(), models.EscrowStatusFunded, escrow.Status)
	s.Require().NotNil(escrow.AutoReleaseAt)
	assert.WithinDuration(s.T(), originalAutoRelease, *escrow.AutoReleaseAt, time.Second)
}

func (s *DisputeServiceTestSuite) TestAutoCloseSkipsResolved() {
	dispute := s.resolvedDispute("favor_vendor")

	s.Require().NoError(s.db.Model(&models.Dispute{}).
		Where("id = ?", dispute.ID).
		Update("auto_close_at", time.Now().UTC().Add(-time.Hour)).Error)

	summary, err := s.svc.ProcessAutoCloses(context.Background())
	s.Require().NoError(err)
	assert.Equal(s.T(), 0, summary.Candidates)
}

func TestDisputeServiceSuite(t *testing.T) {
	suite.Run(t, new(DisputeServiceTestSuite))
}
