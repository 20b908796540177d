package totals_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/testutil"
	"github.com/rotacerta/ekspedisi/internal/totals"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func recalc(t *testing.T, db *gorm.DB, id uint) *models.Shipment {
	t.Helper()
	var out *models.Shipment
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = totals.New().Recalculate(context.Background(), tx, id)
		return err
	}))
	return out
}

func addPackage(t *testing.T, db *gorm.DB, s *models.Shipment, r *models.Recipient, code, weight string) *models.Package {
	t.Helper()
	p := &models.Package{
		ShipmentID:  s.ID,
		RecipientID: r.ID,
		Code:        code,
		ItemName:    "item",
		Weight:      dec(weight),
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func assertTotals(t *testing.T, db *gorm.DB, id uint, weight, cost string) {
	t.Helper()
	var s models.Shipment
	require.NoError(t, db.First(&s, id).Error)
	assert.True(t, s.TotalWeight.Equal(dec(weight)), "total_weight = %s, want %s", s.TotalWeight, weight)
	assert.True(t, s.TotalCost.Equal(dec(cost)), "total_cost = %s, want %s", s.TotalCost, cost)
}

func TestRecalculate_Scenario(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	recipient := testutil.SeedRecipient(t, db, "Budi")
	s := testutil.SeedShipment(t, db, "EKS000001", sender, nil, tier)

	recalc(t, db, s.ID)
	assertTotals(t, db, s.ID, "0", "0")

	p1 := addPackage(t, db, s, recipient, "PKT000001", "2.5")
	recalc(t, db, s.ID)
	assertTotals(t, db, s.ID, "2.5", "25")

	addPackage(t, db, s, recipient, "PKT000002", "1.5")
	recalc(t, db, s.ID)
	assertTotals(t, db, s.ID, "4", "40")

	require.NoError(t, db.Model(p1).Update("is_active", false).Error)
	recalc(t, db, s.ID)
	assertTotals(t, db, s.ID, "1.5", "15")
}

func TestRecalculate_ReturnsUpdatedShipment(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "EXP", "12.50")
	recipient := testutil.SeedRecipient(t, db, "Sari")
	s := testutil.SeedShipment(t, db, "EKS000001", sender, nil, tier)
	addPackage(t, db, s, recipient, "PKT000001", "3")

	got := recalc(t, db, s.ID)

	assert.True(t, got.TotalWeight.Equal(dec("3")))
	assert.True(t, got.TotalCost.Equal(dec("37.5")))
}

func TestRecalculate_MissingServiceTier(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	s := testutil.SeedShipment(t, db, "EKS000001", sender, nil, tier)
	require.NoError(t, db.Delete(&models.ServiceTier{}, tier.ID).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := totals.New().Recalculate(context.Background(), tx, s.ID)
		return err
	})
	assert.ErrorIs(t, err, totals.ErrMissingServiceTier)
}

func TestRecalculate_UnknownShipment(t *testing.T) {
	db := testutil.DB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := totals.New().Recalculate(context.Background(), tx, 999)
		return err
	})
	assert.ErrorIs(t, err, totals.ErrShipmentNotFound)
}

func TestCost(t *testing.T) {
	assert.True(t, totals.Cost(dec("1.333"), dec("3")).Equal(dec("4")))
	assert.True(t, totals.Cost(dec("2.25"), dec("10.10")).Equal(dec("22.73")))
	assert.True(t, totals.Sum(nil).IsZero())
}
