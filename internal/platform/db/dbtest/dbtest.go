// Package dbtest opens isolated in-memory databases for service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db"
)

// New returns a migrated sqlite database private to t, including the read-only
// catalog tables that production leaves to their owning services.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: db.NowUTC,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(db.Models()...))
	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Module{},
		&models.LearningPath{},
		&models.TrackCourse{},
	))
	return gdb
}
