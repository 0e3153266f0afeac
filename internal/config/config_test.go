// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "mainnet", cfg.Wallet.Network)
	assert.Equal(t, 3, cfg.Wallet.RequiredConfirmations)
	assert.Equal(t, int64(250), cfg.Escrow.PlatformFeeBps)
	assert.Equal(t, 7*24*time.Hour, cfg.Escrow.GracePeriod())
	assert.True(t, cfg.Email.Enabled)
}

func TestLoadEmailDisabled(t *testing.T) {
	t.Setenv("EMAIL_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Email.Enabled)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: "5432", User: "app", Password: "s3cret",
		Database: "satmarket", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=app password=s3cret dbname=satmarket sslmode=disable",
		d.DSN())
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("WALLET_NETWORK", "signet")

	_, err := Load()
	assert.Error(t, err)
}
