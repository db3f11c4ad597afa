package database

import (
	"path/filepath"
	"testing"

	"github.com/anjiri1684/edu_commerce/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestSeedAdminIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "seed.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, seedAdmin(db, "admin@example.td", "s3cret!", "Platform Admin"))
	require.NoError(t, seedAdmin(db, "admin@example.td", "other", "Platform Admin"))

	var admins []models.User
	require.NoError(t, db.Where("email = ?", "admin@example.td").Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, models.RoleAdmin, admins[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].Password), []byte("s3cret!")))
}

func TestSeedAdminSkipsWithoutCredentials(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "seed.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, seedAdmin(db, "", "", ""))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Zero(t, count)
}
