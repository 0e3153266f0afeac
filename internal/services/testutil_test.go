// internal/services/testutil_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/models"
	"github.com/satmarket/satmarket-backend/internal/oracle"
)

// bip32TestXpub is the well-known BIP32 test vector 1 master public key.
const bip32TestXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database shared and makes
	// concurrent access serialize instead of opening fresh empty databases.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.Payment{},
		&models.EscrowTransaction{},
		&models.Dispute{},
		&models.DisputeMessage{},
		&models.WalletSettings{},
	)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.WalletSettings{
		ID:                    models.WalletSettingsID,
		ExtendedPublicKey:     bip32TestXpub,
		RequiredConfirmations: 3,
	}).Error)

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Wallet: config.WalletConfig{
			ExtendedPublicKey:     bip32TestXpub,
			Network:               "mainnet",
			RequiredConfirmations: 3,
		},
		Escrow: config.EscrowConfig{
			AutoReleaseDays: 7,
			PlatformFeeBps:  250,
		},
		Dispute: config.DisputeConfig{
			ResolutionDeadlineDays: 7,
			AutoCloseDays:          30,
		},
		Oracle: config.OracleConfig{
			Timeout: 2,
			Workers: 2,
		},
	}
}

func createUser(t *testing.T, db *gorm.DB, userType models.UserType) *models.User {
	t.Helper()

	id := uuid.New()
	user := &models.User{
		Username: "u_" + id.String()[:8],
		Email:    id.String()[:8] + "@example.com",
		UserType: userType,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Sup3rSecret!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createProduct(t *testing.T, db *gorm.DB, vendorID uuid.UUID, price models.Satoshi) *models.Product {
	t.Helper()

	product := &models.Product{
		VendorID:  vendorID,
		Title:     "Cold storage seed plates",
		PriceSats: price,
		Status:    models.ProductStatusActive,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// createFundedOrder seeds an order whose payment has confirmed and whose
// escrow is funded, the state every release and dispute scenario starts from.
func createFundedOrder(t *testing.T, db *gorm.DB, cfg *config.Config, buyer, vendor *models.User) *models.Order {
	t.Helper()

	product := createProduct(t, db, vendor.ID, 100_000)
	now := time.Now().UTC()
	autoRelease := now.Add(cfg.Escrow.GracePeriod())

	order := &models.Order{
		OrderNumber:      "ORD-" + uuid.New().String()[:13],
		BuyerID:          buyer.ID,
		VendorID:         vendor.ID,
		ProductID:        product.ID,
		Quantity:         1,
		ReceivingAddress: "addr_" + uuid.New().String()[:12],
		ExpectedSats:     100_000,
		ReceivedSats:     100_000,
		Confirmations:    3,
		Status:           models.OrderStatusInEscrow,
	}
	require.NoError(t, db.Create(order).Error)

	require.NoError(t, db.Create(&models.Payment{
		OrderID:       order.ID,
		Address:       order.ReceivingAddress,
		AddressIndex:  0,
		ExpectedSats:  100_000,
		ReceivedSats:  100_000,
		Confirmations: 3,
		Status:        models.PaymentStatusConfirmed,
	}).Error)

	gross := models.Satoshi(100_000)
	fee := gross.MulBps(cfg.Escrow.PlatformFeeBps)
	require.NoError(t, db.Create(&models.EscrowTransaction{
		OrderID:       order.ID,
		GrossSats:     gross,
		PlatformFee:   fee,
		VendorPayout:  gross - fee,
		Status:        models.EscrowStatusFunded,
		FundedAt:      &now,
		AutoReleaseAt: &autoRelease,
	}).Error)

	return order
}

func loadEscrow(t *testing.T, db *gorm.DB, orderID uuid.UUID) *models.EscrowTransaction {
	t.Helper()
	var escrow models.EscrowTransaction
	require.NoError(t, db.First(&escrow, "order_id = ?", orderID).Error)
	return &escrow
}

func loadOrder(t *testing.T, db *gorm.DB, orderID uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	return &order
}

// fakeOracle serves canned address statuses and errors for reconciliation
// tests. Safe for concurrent reads; tests mutate it only between runs.
type fakeOracle struct {
	statuses map[string]*oracle.AddressStatus
	failing  map[string]bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		statuses: make(map[string]*oracle.AddressStatus),
		failing:  make(map[string]bool),
	}
}

func (f *fakeOracle) CheckAddressStatus(_ context.Context, address string) (*oracle.AddressStatus, error) {
	if f.failing[address] {
		return nil, oracle.ErrUnavailable
	}
	if status, ok := f.statuses[address]; ok {
		return status, nil
	}
	return &oracle.AddressStatus{}, nil
}
