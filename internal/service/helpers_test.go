package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/codegen"
	"github.com/rotacerta/ekspedisi/internal/events"
	"github.com/rotacerta/ekspedisi/internal/media"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/notify"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/testutil"
	"github.com/rotacerta/ekspedisi/internal/totals"
)

var ctx = context.Background()

type env struct {
	db        *gorm.DB
	auth      *service.AuthService
	users     *service.UserService
	catalog   *service.CatalogService
	shipments *service.ShipmentService
	packages  *service.PackageService
	history   *service.HistoryService
	dashboard *service.DashboardService
	tracking  *service.TrackingService
}

type deps struct {
	cache    cache.TrackingCache
	events   events.Publisher
	notifier notify.Notifier
	fileDB   bool
}

func newEnv(t *testing.T, opts ...func(*deps)) *env {
	t.Helper()
	d := deps{cache: cache.Nop{}, events: events.Nop{}, notifier: notify.Nop{}}
	for _, o := range opts {
		o(&d)
	}
	var db *gorm.DB
	if d.fileDB {
		db = testutil.FileDB(t)
	} else {
		db = testutil.DB(t)
	}
	log := testutil.Logger(t)
	codes := codegen.New()
	recalc := totals.New()
	ms := media.NewStore(t.TempDir())

	return &env{
		db: db,
		auth: service.NewAuthService(db, log, service.AuthConfig{
			Secret:     "test-secret",
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, ms),
		users:     service.NewUserService(db, log, bcrypt.MinCost),
		catalog:   service.NewCatalogService(db, log, recalc, d.cache),
		shipments: service.NewShipmentService(db, log, codes, recalc, d.cache, d.events, d.notifier),
		packages:  service.NewPackageService(db, log, codes, recalc, d.cache, ms),
		history:   service.NewHistoryService(db, log, d.cache),
		dashboard: service.NewDashboardService(db, log),
		tracking:  service.NewTrackingService(db, log, d.cache),
	}
}

func withCache(c cache.TrackingCache) func(*deps) { return func(d *deps) { d.cache = c } }
func withEvents(p events.Publisher) func(*deps) { return func(d *deps) { d.events = p } }
func withNotifier(n notify.Notifier) func(*deps) { return func(d *deps) { d.notifier = n } }

// withFileDB backs the env with a file database for concurrent writers.
func withFileDB() func(*deps) { return func(d *deps) { d.fileDB = true } }

func assertAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok, "expected *apierr.Error, got %T: %v", err, err)
	assert.Equal(t, status, apiErr.Status, apiErr.Error())
	assert.Equal(t, code, apiErr.Code)
}

// assertServerError checks that err is an internal failure, not one of the
// client facing apierr errors.
func assertServerError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	_, ok := apierr.As(err)
	assert.False(t, ok, "expected an internal error, got %v", err)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ptr[T any](v T) *T { return &v }

func assertTotals(t *testing.T, db *gorm.DB, shipmentID uint, weight, cost string) {
	t.Helper()
	var s models.Shipment
	require.NoError(t, db.First(&s, shipmentID).Error)
	assert.True(t, s.TotalWeight.Equal(*dec(weight)), "total_weight = %s, want %s", s.TotalWeight, weight)
	assert.True(t, s.TotalCost.Equal(*dec(cost)), "total_cost = %s, want %s", s.TotalCost, cost)
}

// newPackage creates a package through the service with the given weight.
func newPackage(t *testing.T, e *env, actor *models.User, shipmentID, recipientID uint, weight string) *models.Package {
	t.Helper()
	p, err := e.packages.Create(ctx, actor, service.PackageInput{
		ShipmentID:  &shipmentID,
		RecipientID: &recipientID,
		ItemName:    ptr("Sepatu"),
		Weight:      dec(weight),
	})
	require.NoError(t, err)
	return p
}
