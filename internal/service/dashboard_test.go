package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

func TestDashboardStats(t *testing.T) {
	e := newEnv(t)
	admin := testutil.SeedUser(t, e.db, "admin", models.RoleAdmin)
	alice := testutil.SeedUser(t, e.db, "alice", models.RoleCustomer)
	bob := testutil.SeedUser(t, e.db, "bob", models.RoleCustomer)
	tier := testutil.SeedTier(t, e.db, "REG", "10.00")
	recipient := testutil.SeedRecipient(t, e.db, "Rina")

	a1 := testutil.SeedShipment(t, e.db, "EKS000001", alice, nil, tier)
	a2 := testutil.SeedShipment(t, e.db, "EKS000002", alice, nil, tier)
	b1 := testutil.SeedShipment(t, e.db, "EKS000003", bob, nil, tier)
	gone := testutil.SeedShipment(t, e.db, "EKS000004", bob, nil, tier)
	require.NoError(t, e.db.Model(a2).Update("status", models.StatusTransit).Error)
	require.NoError(t, e.db.Model(b1).Update("status", models.StatusDelivered).Error)
	require.NoError(t, e.db.Model(gone).Update("is_active", false).Error)

	newPackage(t, e, alice, a1.ID, recipient.ID, "1")
	newPackage(t, e, alice, a1.ID, recipient.ID, "1")

	got, err := e.dashboard.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, service.DashboardStats{
		TotalShipments:     3,
		PendingShipments:   1,
		TransitShipments:   1,
		DeliveredShipments: 1,
		TotalPackages:      2,
		TotalUsers:         3,
	}, *got)

	got, err = e.dashboard.Stats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, service.DashboardStats{
		TotalShipments:   2,
		PendingShipments: 1,
		TransitShipments: 1,
		TotalPackages:    2,
		TotalUsers:       1,
	}, *got)
}
