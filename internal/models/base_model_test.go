// internal/models/base_model_test.go
package models

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The BaseModel DDL must be accepted by the pure-Go sqlite driver the tests
// run on, not just postgres; the primary key comes from the BeforeCreate hook
// rather than a database-side default.
func TestBaseModelMigratesOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&User{}, &Product{}, &Order{}, &Payment{},
		&EscrowTransaction{}, &Dispute{}, &DisputeMessage{},
	))

	user := &User{
		Username: "migrator",
		Email:    "migrator@example.com",
		UserType: UserTypeBuyer,
		Status:   UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	assert.NotEqual(t, uuid.Nil, user.ID)

	var got User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	assert.Equal(t, user.ID, got.ID)
}

func TestBaseModelKeepsExplicitID(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	id := uuid.New()
	user := &User{
		BaseModel: BaseModel{ID: id},
		Username:  "fixed",
		Email:     "fixed@example.com",
		UserType:  UserTypeBuyer,
		Status:    UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	assert.Equal(t, id, user.ID)
}
