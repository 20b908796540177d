package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
)

// DB returns a migrated in-memory sqlite database private to the test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	return open(tb, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

// FileDB returns a migrated sqlite database in a temp file for tests that
// write from several goroutines. Transactions start with BEGIN IMMEDIATE and
// wait on each other instead of failing with SQLITE_BUSY.
func FileDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "ekspedisi.db")
	return open(tb, "file:"+path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate")
}

func open(tb testing.TB, dsn string) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxIdleConns(4)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

func SeedUser(tb testing.TB, db *gorm.DB, username string, role models.Role) *models.User {
	tb.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedTier(tb testing.TB, db *gorm.DB, name, rate string) *models.ServiceTier {
	tb.Helper()
	t := &models.ServiceTier{
		Name:      name,
		RatePerKg: decimal.RequireFromString(rate),
	}
	if err := db.Create(t).Error; err != nil {
		tb.Fatalf("seed tier: %v", err)
	}
	return t
}

func SeedRecipient(tb testing.TB, db *gorm.DB, name string) *models.Recipient {
	tb.Helper()
	r := &models.Recipient{
		Name:       name,
		Address:    "Jl. Merdeka 1",
		Phone:      "081234567890",
		City:       "Bandung",
		PostalCode: "40111",
	}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("seed recipient: %v", err)
	}
	return r
}

// SeedShipment inserts a shipment with a caller chosen tracking code,
// bypassing code generation.
func SeedShipment(tb testing.TB, db *gorm.DB, code string, sender *models.User, courier *models.User, tier *models.ServiceTier) *models.Shipment {
	tb.Helper()
	s := &models.Shipment{
		SenderID:      sender.ID,
		TrackingCode:  code,
		Status:        models.StatusPending,
		ServiceTierID: tier.ID,
	}
	if courier != nil {
		s.CourierID = &courier.ID
	}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed shipment: %v", err)
	}
	return s
}
