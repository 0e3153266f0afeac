// internal/services/checkout_service.go
package services

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/database"
	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/wallet"
)

type CheckoutService struct {
	db        *gorm.DB
	config    *config.Config
	allocator *wallet.Allocator
}

type CheckoutRequest struct {
	ProductID       uuid.UUID `json:"product_id" validate:"required"`
	Quantity        int       `json:"quantity" validate:"required,min=1,max=1000"`
	ShippingAddress string    `json:"shipping_address" validate:"required"`
}

type CheckoutResponse struct {
	OrderID          uuid.UUID      `json:"order_id"`
	OrderNumber      string         `json:"order_number"`
	ReceivingAddress string         `json:"receiving_address"`
	ExpectedSats     models.Satoshi `json:"expected_sats"`
	ExpectedBTC      string         `json:"expected_btc"`
}

func NewCheckoutService(db *gorm.DB, cfg *config.Config, allocator *wallet.Allocator) *CheckoutService {
	return &CheckoutService{
		db:        db,
		config:    cfg,
		allocator: allocator,
	}
}

// CreateOrder prices the order, allocates a fresh receiving address and
// creates the order, payment and escrow records as one unit. A failure at any
// point rolls everything back, including the address index increment.
func (s *CheckoutService) CreateOrder(buyerID uuid.UUID, req *CheckoutRequest) (*CheckoutResponse, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}
	if product.Status != models.ProductStatusActive {
		return nil, ErrProductUnavailable
	}
	if product.VendorID == buyerID {
		return nil, fmt.Errorf("%w: cannot purchase own product", ErrNotAuthorized)
	}

	expected, err := orderTotal(product.PriceSats, req.Quantity)
	if err != nil {
		return nil, err
	}

	fee := expected.MulBps(s.config.Escrow.PlatformFeeBps)

	var resp *CheckoutResponse
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		alloc, err := s.allocator.Allocate(tx)
		if err != nil {
			return err
		}

		order := &models.Order{
			OrderNumber:      generateOrderNumber(),
			BuyerID:          buyerID,
			VendorID:         product.VendorID,
			ProductID:        product.ID,
			Quantity:         req.Quantity,
			ReceivingAddress: alloc.Address,
			ExpectedSats:     expected,
			Status:           models.OrderStatusAwaiting,
			ShippingAddress:  req.ShippingAddress,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		payment := &models.Payment{
			OrderID:      order.ID,
			Address:      alloc.Address,
			AddressIndex: alloc.Index,
			ExpectedSats: expected,
			Status:       models.PaymentStatusAwaiting,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		escrow := &models.EscrowTransaction{
			OrderID:      order.ID,
			GrossSats:    expected,
			PlatformFee:  fee,
			VendorPayout: expected - fee,
			Status:       models.EscrowStatusPending,
		}
		if err := tx.Create(escrow).Error; err != nil {
			return fmt.Errorf("failed to create escrow: %w", err)
		}

		resp = &CheckoutResponse{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			ReceivingAddress: alloc.Address,
			ExpectedSats:     expected,
			ExpectedBTC:      expected.FormatBTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func orderTotal(unit models.Satoshi, quantity int) (models.Satoshi, error) {
	if unit <= 0 || quantity <= 0 {
		return 0, models.ErrInvalidAmount
	}
	total := unit * models.Satoshi(quantity)
	if total/models.Satoshi(quantity) != unit {
		return 0, fmt.Errorf("%w: overflow", models.ErrInvalidAmount)
	}
	return total, nil
}

func generateOrderNumber() string {
	const digits = "0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), string(b))
}
