// internal/models/settings.go
package models

import "time"

// WalletSettings is the single operator-configured row (id=1) holding the
// extended public key and the monotonic address index. NextAddressIndex is
// the only field the application mutates, and only ever by incrementing it
// inside the allocator's atomic update.
type WalletSettings struct {
	ID                    uint      `json:"id" gorm:"primaryKey"`
	ExtendedPublicKey     string    `json:"extended_public_key" gorm:"size:120"`
	NextAddressIndex      uint32    `json:"next_address_index" gorm:"not null;default:0"`
	RequiredConfirmations int       `json:"required_confirmations" gorm:"not null;default:3"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// WalletSettingsID is the fixed primary key of the settings row.
const WalletSettingsID uint = 1
