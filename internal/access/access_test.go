package access_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/access"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

type fixture struct {
	db                 *gorm.DB
	admin, staff       *models.User
	courierA, courierB *models.User
	alice, bob         *models.User
	s1, s2, s3, gone   *models.Shipment
}

// s1: alice -> courierA, s2: bob -> courierB, s3: staff (no courier),
// gone: alice -> courierA but inactive.
func newFixture(t *testing.T) *fixture {
	db := testutil.DB(t)
	f := &fixture{db: db}
	f.admin = testutil.SeedUser(t, db, "admin", models.RoleAdmin)
	f.staff = testutil.SeedUser(t, db, "staff", models.RoleStaff)
	f.courierA = testutil.SeedUser(t, db, "courier-a", models.RoleCourier)
	f.courierB = testutil.SeedUser(t, db, "courier-b", models.RoleCourier)
	f.alice = testutil.SeedUser(t, db, "alice", models.RoleCustomer)
	f.bob = testutil.SeedUser(t, db, "bob", models.RoleCustomer)

	tier := testutil.SeedTier(t, db, "REG", "10.00")
	recipient := testutil.SeedRecipient(t, db, "Rina")
	f.s1 = testutil.SeedShipment(t, db, "EKS000001", f.alice, f.courierA, tier)
	f.s2 = testutil.SeedShipment(t, db, "EKS000002", f.bob, f.courierB, tier)
	f.s3 = testutil.SeedShipment(t, db, "EKS000003", f.staff, nil, tier)
	f.gone = testutil.SeedShipment(t, db, "EKS000004", f.alice, f.courierA, tier)
	require.NoError(t, db.Model(f.gone).Update("is_active", false).Error)

	for i, s := range []*models.Shipment{f.s1, f.s2, f.s3, f.gone} {
		require.NoError(t, db.Create(&models.Package{
			ShipmentID:  s.ID,
			RecipientID: recipient.ID,
			Code:        "PKT00000" + string(rune('1'+i)),
			ItemName:    "box",
			Weight:      decimal.NewFromInt(1),
		}).Error)
		require.NoError(t, db.Create(&models.StatusHistoryEntry{
			ShipmentID: s.ID,
			Status:     "created",
		}).Error)
	}
	return f
}

func visibleShipments(t *testing.T, db *gorm.DB, u *models.User) []string {
	var codes []string
	require.NoError(t, db.Model(&models.Shipment{}).
		Scopes(access.Scope(u, access.Shipments)).
		Order("id").
		Pluck("tracking_code", &codes).Error)
	return codes
}

func visibleShipmentIDs(t *testing.T, db *gorm.DB, model interface{}, u *models.User, kind access.Kind) []uint {
	var ids []uint
	require.NoError(t, db.Model(model).
		Scopes(access.Scope(u, kind)).
		Order("shipment_id").
		Pluck("shipment_id", &ids).Error)
	return ids
}

func TestScope_Shipments(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"EKS000001", "EKS000002", "EKS000003"}, visibleShipments(t, f.db, f.admin))
	assert.Equal(t, []string{"EKS000001"}, visibleShipments(t, f.db, f.courierA))
	assert.Equal(t, []string{"EKS000002"}, visibleShipments(t, f.db, f.courierB))
	assert.Equal(t, []string{"EKS000001"}, visibleShipments(t, f.db, f.alice))
	assert.Equal(t, []string{"EKS000003"}, visibleShipments(t, f.db, f.staff))
	assert.Empty(t, visibleShipments(t, f.db, nil))
}

func TestScope_PackagesAndHistory(t *testing.T) {
	f := newFixture(t)

	for _, kind := range []struct {
		name  string
		model interface{}
		kind  access.Kind
	}{
		{"packages", &models.Package{}, access.Packages},
		{"history", &models.StatusHistoryEntry{}, access.History},
	} {
		t.Run(kind.name, func(t *testing.T) {
			assert.Equal(t, []uint{f.s1.ID, f.s2.ID, f.s3.ID}, visibleShipmentIDs(t, f.db, kind.model, f.admin, kind.kind))
			assert.Equal(t, []uint{f.s1.ID}, visibleShipmentIDs(t, f.db, kind.model, f.courierA, kind.kind))
			assert.Equal(t, []uint{f.s2.ID}, visibleShipmentIDs(t, f.db, kind.model, f.bob, kind.kind))
			assert.Equal(t, []uint{f.s3.ID}, visibleShipmentIDs(t, f.db, kind.model, f.staff, kind.kind))
		})
	}
}

func TestCanSee(t *testing.T) {
	f := newFixture(t)

	assert.True(t, access.CanSee(f.admin, f.s2))
	assert.True(t, access.CanSee(f.courierA, f.s1))
	assert.False(t, access.CanSee(f.courierA, f.s2))
	assert.True(t, access.CanSee(f.alice, f.s1))
	assert.False(t, access.CanSee(f.alice, f.s2))
	assert.False(t, access.CanSee(f.courierA, f.s3))

	f.gone.IsActive = false
	assert.False(t, access.CanSee(f.admin, f.gone))
	assert.False(t, access.CanSee(nil, f.s1))
}

func TestCanSeeUser(t *testing.T) {
	admin := &models.User{Base: models.Base{ID: 1}, Role: models.RoleAdmin}
	alice := &models.User{Base: models.Base{ID: 2}, Role: models.RoleCustomer}

	assert.True(t, access.CanSeeUser(admin, 2))
	assert.True(t, access.CanSeeUser(alice, 2))
	assert.False(t, access.CanSeeUser(alice, 1))
}
