package codegen_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/codegen"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

func next(t *testing.T, db *gorm.DB, gen *codegen.Generator, prefix string) string {
	t.Helper()
	var code string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		code, err = gen.Next(context.Background(), tx, prefix)
		return err
	})
	require.NoError(t, err)
	return code
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "EKS000001", codegen.Format("EKS", 1, 6))
	assert.Equal(t, "PKT000042", codegen.Format("PKT", 42, 6))
	assert.Equal(t, "EKS1234567", codegen.Format("EKS", 1234567, 6))
}

func TestParseSuffix(t *testing.T) {
	n, err := codegen.ParseSuffix("EKS", "EKS000123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), n)

	for _, bad := range []string{"EKS", "EKSabc", "PKT000001", "EKS-00001"} {
		_, err := codegen.ParseSuffix("EKS", bad)
		assert.ErrorIs(t, err, codegen.ErrCorruptCode, bad)
	}
}

func TestGenerator_FirstCodes(t *testing.T) {
	db := testutil.DB(t)
	gen := codegen.New()

	assert.Equal(t, "EKS000001", next(t, db, gen, codegen.TrackingPrefix))
	assert.Equal(t, "EKS000002", next(t, db, gen, codegen.TrackingPrefix))
	assert.Equal(t, "PKT000001", next(t, db, gen, codegen.PackagePrefix))
}

func TestGenerator_SequenceIsStrictlyIncreasing(t *testing.T) {
	db := testutil.DB(t)
	gen := codegen.New()

	seen := map[string]bool{}
	var prev int64
	for i := 0; i < 25; i++ {
		code := next(t, db, gen, codegen.PackagePrefix)
		require.False(t, seen[code], "duplicate %s", code)
		seen[code] = true

		require.Len(t, code, len("PKT")+6)
		n, err := codegen.ParseSuffix(codegen.PackagePrefix, code)
		require.NoError(t, err)
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestGenerator_SeedsFromLastRecord(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	testutil.SeedShipment(t, db, "EKS000007", sender, nil, tier)
	testutil.SeedShipment(t, db, "EKS000041", sender, nil, tier)

	gen := codegen.New()
	assert.Equal(t, "EKS000042", next(t, db, gen, codegen.TrackingPrefix))
	assert.Equal(t, "EKS000043", next(t, db, gen, codegen.TrackingPrefix))
}

func TestGenerator_CorruptLastCode(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	testutil.SeedShipment(t, db, "EKSX1", sender, nil, tier)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := codegen.New().Next(context.Background(), tx, codegen.TrackingPrefix)
		return err
	})
	assert.ErrorIs(t, err, codegen.ErrCorruptCode)
}

func TestGenerator_RolledBackAllocationIsReused(t *testing.T) {
	db := testutil.DB(t)
	gen := codegen.New()
	assert.Equal(t, "EKS000001", next(t, db, gen, codegen.TrackingPrefix))

	_ = db.Transaction(func(tx *gorm.DB) error {
		code, err := gen.Next(context.Background(), tx, codegen.TrackingPrefix)
		require.NoError(t, err)
		assert.Equal(t, "EKS000002", code)
		return assert.AnError
	})

	assert.Equal(t, "EKS000002", next(t, db, gen, codegen.TrackingPrefix))
}

func TestGenerator_SeedsFromHighestCode(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	testutil.SeedShipment(t, db, "EKS1000000", sender, nil, tier)
	testutil.SeedShipment(t, db, "EKS999999", sender, nil, tier)

	assert.Equal(t, "EKS1000001", next(t, db, codegen.New(), codegen.TrackingPrefix))
}

func TestGenerator_Resync(t *testing.T) {
	db := testutil.DB(t)
	sender := testutil.SeedUser(t, db, "sender", models.RoleCustomer)
	tier := testutil.SeedTier(t, db, "REG", "10.00")
	gen := codegen.New()

	assert.Equal(t, "EKS000001", next(t, db, gen, codegen.TrackingPrefix))
	testutil.SeedShipment(t, db, "EKS000009", sender, nil, tier)

	require.NoError(t, gen.Resync(context.Background(), db, codegen.TrackingPrefix))
	assert.Equal(t, "EKS000010", next(t, db, gen, codegen.TrackingPrefix))

	// the counter never moves backwards
	require.NoError(t, gen.Resync(context.Background(), db, codegen.TrackingPrefix))
	assert.Equal(t, "EKS000011", next(t, db, gen, codegen.TrackingPrefix))
}

func TestGenerator_ConcurrentAllocationsAreDistinct(t *testing.T) {
	db := testutil.FileDB(t)
	gen := codegen.New()

	const workers, perWorker = 6, 5
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				var code string
				err := db.Transaction(func(tx *gorm.DB) error {
					var err error
					code, err = gen.Next(context.Background(), tx, codegen.PackagePrefix)
					return err
				})
				if err != nil {
					return err
				}
				mu.Lock()
				seen[code] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, seen, workers*perWorker)
	for n := int64(1); n <= workers*perWorker; n++ {
		assert.True(t, seen[codegen.Format(codegen.PackagePrefix, n, codegen.DefaultWidth)], "missing code %d", n)
	}
}
