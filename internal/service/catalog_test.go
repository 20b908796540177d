package service_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_cache "github.com/rotacerta/ekspedisi/internal/cache/mocks"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

func TestTiers_CRUD(t *testing.T) {
	e := newEnv(t)
	staff := testutil.SeedUser(t, e.db, "staff", models.RoleStaff)
	alice := testutil.SeedUser(t, e.db, "alice", models.RoleCustomer)

	_, err := e.catalog.CreateTier(ctx, alice, service.TierInput{Name: ptr("REG"), RatePerKg: dec("10")})
	assertAPIError(t, err, http.StatusForbidden, "forbidden")

	_, err = e.catalog.CreateTier(ctx, staff, service.TierInput{Name: ptr("REG"), RatePerKg: dec("-1")})
	assertAPIError(t, err, http.StatusBadRequest, "validation_error")

	tier, err := e.catalog.CreateTier(ctx, staff, service.TierInput{Name: ptr(" REG "), RatePerKg: dec("10.005")})
	require.NoError(t, err)
	assert.Equal(t, "REG", tier.Name)
	assert.Equal(t, "10.01", tier.RatePerKg.StringFixed(2))

	list, total, err := e.catalog.ListTiers(ctx, service.TierFilter{Name: "REG"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, tier.ID, list[0].ID)

	require.NoError(t, e.catalog.DeleteTier(ctx, staff, tier.ID))
	_, err = e.catalog.GetTier(ctx, tier.ID)
	assertAPIError(t, err, http.StatusNotFound, "not_found")
}

func TestUpdateTier_RepricesOpenShipments(t *testing.T) {
	ctrl := gomock.NewController(t)
	tc := mock_cache.NewMockTrackingCache(ctrl)
	e := newEnv(t, withCache(tc))

	admin := testutil.SeedUser(t, e.db, "admin", models.RoleAdmin)
	alice := testutil.SeedUser(t, e.db, "alice", models.RoleCustomer)
	tier := testutil.SeedTier(t, e.db, "REG", "10.00")
	recipient := testutil.SeedRecipient(t, e.db, "Rina")
	open := testutil.SeedShipment(t, e.db, "EKS000001", alice, nil, tier)
	done := testutil.SeedShipment(t, e.db, "EKS000002", alice, nil, tier)

	tc.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	newPackage(t, e, alice, open.ID, recipient.ID, "2")
	newPackage(t, e, alice, done.ID, recipient.ID, "3")
	require.NoError(t, e.db.Model(done).Update("status", models.StatusDelivered).Error)

	tc.EXPECT().Invalidate(gomock.Any(), "EKS000001").Return(nil)
	got, err := e.catalog.UpdateTier(ctx, admin, tier.ID, service.TierInput{RatePerKg: dec("12.5")})
	require.NoError(t, err)
	assert.Equal(t, "12.50", got.RatePerKg.StringFixed(2))

	assertTotals(t, e.db, open.ID, "2", "25")
	assertTotals(t, e.db, done.ID, "3", "30")

	// renaming alone leaves totals and cache alone
	got, err = e.catalog.UpdateTier(ctx, admin, tier.ID, service.TierInput{Name: ptr("Reguler")})
	require.NoError(t, err)
	assert.Equal(t, "Reguler", got.Name)
}

func TestRecipients_CRUD(t *testing.T) {
	e := newEnv(t)

	_, err := e.catalog.CreateRecipient(ctx, service.RecipientInput{Name: ptr("Rina"), Phone: ptr("12")})
	assertAPIError(t, err, http.StatusBadRequest, "validation_error")

	r, err := e.catalog.CreateRecipient(ctx, service.RecipientInput{
		Name:  ptr("Rina"),
		Phone: ptr("+62 812-3456-7890"),
		City:  ptr("Bandung"),
	})
	require.NoError(t, err)
	assert.Equal(t, "6281234567890", r.Phone)

	testutil.SeedRecipient(t, e.db, "Sari")
	list, total, err := e.catalog.ListRecipients(ctx, service.RecipientFilter{City: "Bandung"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	r, err = e.catalog.UpdateRecipient(ctx, r.ID, service.RecipientInput{City: ptr("Garut")})
	require.NoError(t, err)
	assert.Equal(t, "Garut", r.City)
	assert.Equal(t, "Rina", r.Name)

	require.NoError(t, e.catalog.DeleteRecipient(ctx, r.ID))
	_, err = e.catalog.GetRecipient(ctx, r.ID)
	assertAPIError(t, err, http.StatusNotFound, "not_found")
}
