// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Wallet      WalletConfig
	Escrow      EscrowConfig
	Dispute     DisputeConfig
	Oracle      OracleConfig
	Reconcile   ReconcileConfig
	AWS         AWSConfig
	Email       EmailConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

// WalletConfig seeds the persisted wallet settings row on first boot. The
// DB row is authoritative afterwards; only the xpub and network here matter
// for a fresh install.
type WalletConfig struct {
	ExtendedPublicKey     string
	Network               string // mainnet | testnet3 | regtest
	RequiredConfirmations int
}

type EscrowConfig struct {
	AutoReleaseDays int
	PlatformFeeBps  int64 // basis points, 250 = 2.5%
}

type DisputeConfig struct {
	ResolutionDeadlineDays int
	AutoCloseDays          int
}

type OracleConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // per-address request timeout, seconds
	Workers int
}

type ReconcileConfig struct {
	Interval int    // minutes between cycles
	Token    string // shared secret for the external trigger endpoint
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "satmarket"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24), // 24 hours
		},
		Wallet: WalletConfig{
			ExtendedPublicKey:     getEnv("WALLET_XPUB", ""),
			Network:               getEnv("WALLET_NETWORK", "mainnet"),
			RequiredConfirmations: getEnvAsInt("WALLET_REQUIRED_CONFIRMATIONS", 3),
		},
		Escrow: EscrowConfig{
			AutoReleaseDays: getEnvAsInt("ESCROW_AUTO_RELEASE_DAYS", 7),
			PlatformFeeBps:  int64(getEnvAsInt("PLATFORM_FEE_BPS", 250)),
		},
		Dispute: DisputeConfig{
			ResolutionDeadlineDays: getEnvAsInt("DISPUTE_RESOLUTION_DEADLINE_DAYS", 7),
			AutoCloseDays:          getEnvAsInt("DISPUTE_AUTO_CLOSE_DAYS", 30),
		},
		Oracle: OracleConfig{
			BaseURL: getEnv("ORACLE_BASE_URL", ""),
			APIKey:  getEnv("ORACLE_API_KEY", ""),
			Timeout: getEnvAsInt("ORACLE_TIMEOUT_SECONDS", 10),
			Workers: getEnvAsInt("ORACLE_WORKERS", 8),
		},
		Reconcile: ReconcileConfig{
			Interval: getEnvAsInt("RECONCILE_INTERVAL_MINUTES", 5),
			Token:    getEnv("RECONCILE_TOKEN", ""),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "satmarket-evidence"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ENABLED", true),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@satmarket.io"),
			FromName:     getEnv("FROM_NAME", "SatMarket"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Reconcile.Token == "" && c.Environment == "production" {
		return fmt.Errorf("reconcile trigger token is required in production")
	}

	switch c.Wallet.Network {
	case "mainnet", "testnet3", "regtest":
	default:
		return fmt.Errorf("unknown wallet network %q", c.Wallet.Network)
	}

	if c.Escrow.PlatformFeeBps < 0 || c.Escrow.PlatformFeeBps > 10_000 {
		return fmt.Errorf("platform fee must be between 0 and 10000 bps")
	}

	return nil
}

// DSN renders the postgres connection string for gorm.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// GracePeriod returns the escrow auto-release grace period as a duration.
func (c *EscrowConfig) GracePeriod() time.Duration {
	return time.Duration(c.AutoReleaseDays) * 24 * time.Hour
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
