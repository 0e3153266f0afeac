// internal/wallet/allocator_test.go
package wallet

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/satmarket/satmarket-backend/internal/models"
)

// BIP32 test vector 1 master public key.
const testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

func newTestDB(t *testing.T, xpub string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.WalletSettings{}))
	require.NoError(t, db.Create(&models.WalletSettings{
		ID:                    models.WalletSettingsID,
		ExtendedPublicKey:     xpub,
		RequiredConfirmations: 3,
	}).Error)

	return db
}

func TestAllocateSequentialIndexes(t *testing.T) {
	db := newTestDB(t, testXpub)
	allocator, err := NewAllocator(db, "mainnet")
	require.NoError(t, err)

	for i := uint32(0); i < 5; i++ {
		alloc, err := allocator.Allocate(db)
		require.NoError(t, err)
		assert.Equal(t, i, alloc.Index)
		assert.NotEmpty(t, alloc.Address)
	}

	var settings models.WalletSettings
	require.NoError(t, db.First(&settings, models.WalletSettingsID).Error)
	assert.Equal(t, uint32(5), settings.NextAddressIndex)
}

func TestAllocateDistinctAddresses(t *testing.T) {
	db := newTestDB(t, testXpub)
	allocator, err := NewAllocator(db, "mainnet")
	require.NoError(t, err)

	seen := make(map[string]uint32)
	for i := 0; i < 20; i++ {
		alloc, err := allocator.Allocate(db)
		require.NoError(t, err)
		prev, dup := seen[alloc.Address]
		assert.False(t, dup, "address %s issued at both %d and %d", alloc.Address, prev, alloc.Index)
		seen[alloc.Address] = alloc.Index
	}
}

func TestAllocateDeterministicDerivation(t *testing.T) {
	// Two databases with the same xpub must issue identical address
	// sequences: derivation depends only on the key and the index.
	dbA := newTestDB(t, testXpub)
	dbB := newTestDB(t, testXpub)

	allocA, err := NewAllocator(dbA, "mainnet")
	require.NoError(t, err)
	allocB, err := NewAllocator(dbB, "mainnet")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		a, err := allocA.Allocate(dbA)
		require.NoError(t, err)
		b, err := allocB.Allocate(dbB)
		require.NoError(t, err)
		assert.Equal(t, a.Index, b.Index)
		assert.Equal(t, a.Address, b.Address)
	}
}

func TestAllocateConcurrent(t *testing.T) {
	db := newTestDB(t, testXpub)
	allocator, err := NewAllocator(db, "mainnet")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan uint32, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := allocator.Allocate(db)
			assert.NoError(t, err)
			if err == nil {
				results <- alloc.Index
			}
		}()
	}
	wg.Wait()
	close(results)

	indexes := make(map[uint32]bool)
	for idx := range results {
		assert.False(t, indexes[idx], "index %d issued twice", idx)
		indexes[idx] = true
	}
	assert.Len(t, indexes, n)
}

func TestAllocateNotConfigured(t *testing.T) {
	db := newTestDB(t, "")
	allocator, err := NewAllocator(db, "mainnet")
	require.NoError(t, err)

	_, err = allocator.Allocate(db)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAllocateRejectsGarbageKey(t *testing.T) {
	db := newTestDB(t, "not-a-key")
	allocator, err := NewAllocator(db, "mainnet")
	require.NoError(t, err)

	_, err = allocator.Allocate(db)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewAllocatorUnknownNetwork(t *testing.T) {
	db := newTestDB(t, testXpub)
	_, err := NewAllocator(db, "signet")
	assert.Error(t, err)
}
