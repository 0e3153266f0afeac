// internal/wallet/allocator.go

// Package wallet derives receiving addresses from the operator-configured
// extended public key. No private key material ever enters this process; the
// allocator only walks the external (branch 0) chain of the xpub.
package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/models"
)

var (
	// ErrNotConfigured means no extended public key has been set by the
	// operator. Checkout surfaces this as "payments not available yet".
	ErrNotConfigured = errors.New("wallet extended public key not configured")

	// ErrInvalidKey means the configured xpub cannot be parsed, or is a
	// private key (which must never be given to this service).
	ErrInvalidKey = errors.New("invalid extended public key")
)

// Allocation is one issued receiving address and the index it was derived at.
type Allocation struct {
	Address string
	Index   uint32
}

type Allocator struct {
	db  *gorm.DB
	net *chaincfg.Params
}

func NewAllocator(db *gorm.DB, network string) (*Allocator, error) {
	params, err := netParams(network)
	if err != nil {
		return nil, err
	}
	return &Allocator{db: db, net: params}, nil
}

func netParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// Allocate reserves the next unused address. The read-then-increment is a
// single UPDATE ... RETURNING statement, so two concurrent checkouts can
// never observe the same index. Runs on the given handle, which may be an
// open transaction (checkout passes its own so a failed checkout rolls the
// counter back with the rest of the records).
func (a *Allocator) Allocate(tx *gorm.DB) (*Allocation, error) {
	var settings models.WalletSettings
	if err := tx.First(&settings, models.WalletSettingsID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to load wallet settings: %w", err)
	}
	if settings.ExtendedPublicKey == "" {
		return nil, ErrNotConfigured
	}

	key, err := hdkeychain.NewKeyFromString(settings.ExtendedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("%w: private key supplied where xpub expected", ErrInvalidKey)
	}

	branch, err := key.Child(0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive external branch: %w", err)
	}

	// BIP32 leaves ~1 in 2^127 indexes underivable; skip those by taking
	// another index from the counter.
	for {
		index, err := a.nextIndex(tx)
		if err != nil {
			return nil, err
		}

		child, err := branch.Child(index)
		if err != nil {
			if errors.Is(err, hdkeychain.ErrInvalidChild) {
				continue
			}
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}

		addr, err := child.Address(a.net)
		if err != nil {
			return nil, fmt.Errorf("failed to encode address at %d: %w", index, err)
		}

		return &Allocation{Address: addr.EncodeAddress(), Index: index}, nil
	}
}

// nextIndex atomically claims and returns the current index value,
// incrementing the stored counter in the same statement.
func (a *Allocator) nextIndex(tx *gorm.DB) (uint32, error) {
	var next uint32
	err := tx.Raw(
		"UPDATE wallet_settings SET next_address_index = next_address_index + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING next_address_index",
		models.WalletSettingsID,
	).Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance address index: %w", err)
	}
	if next == 0 {
		return 0, ErrNotConfigured
	}
	return next - 1, nil
}
