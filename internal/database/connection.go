// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Failed to get underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close database connection")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.Payment{},
		&models.EscrowTransaction{},
		&models.Dispute{},
		&models.DisputeMessage{},
		&models.WalletSettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_buyer_status ON orders(buyer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_vendor_status ON orders(vendor_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		// Payment indexes: the reconciliation engine scans by status, and the
		// address uniqueness invariant is enforced here, not in application code
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_address ON payments(address)",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)",

		// Escrow indexes for the auto-release sweep
		"CREATE INDEX IF NOT EXISTS idx_escrow_status_release ON escrow_transactions(status, auto_release_at)",

		// Dispute indexes for freeze checks and the auto-close sweep
		"CREATE INDEX IF NOT EXISTS idx_disputes_order_status ON disputes(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_disputes_auto_close ON disputes(status, auto_close_at)",
		"CREATE INDEX IF NOT EXISTS idx_dispute_messages_dispute ON dispute_messages(dispute_id, created_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedInitialData creates the wallet settings row and a default admin user on
// a fresh database.
func SeedInitialData(db *gorm.DB, cfg *config.Config) error {
	logrus.Info("Seeding initial data...")

	var settingsCount int64
	db.Model(&models.WalletSettings{}).Count(&settingsCount)
	if settingsCount == 0 {
		settings := &models.WalletSettings{
			ID:                    models.WalletSettingsID,
			ExtendedPublicKey:     cfg.Wallet.ExtendedPublicKey,
			NextAddressIndex:      0,
			RequiredConfirmations: cfg.Wallet.RequiredConfirmations,
		}
		if err := db.Create(settings).Error; err != nil {
			return fmt.Errorf("failed to create wallet settings: %w", err)
		}
		logrus.Info("Wallet settings row created")
	}

	var adminCount int64
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&adminCount)
	if adminCount == 0 {
		admin := &models.User{
			Username: "admin",
			Email:    "admin@satmarket.io",
			UserType: models.UserTypeAdmin,
			Status:   models.UserStatusActive,
		}
		if err := admin.SetPassword("admin123!@#"); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}
		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		logrus.Info("Default admin user created")
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
