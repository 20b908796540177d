package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rotacerta/ekspedisi/internal/cache"
	mock_cache "github.com/rotacerta/ekspedisi/internal/cache/mocks"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/testutil"
)

func TestTrackingLookup_ReadThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	tc := mock_cache.NewMockTrackingCache(ctrl)
	e := newEnv(t, withCache(tc))

	alice := testutil.SeedUser(t, e.db, "alice", models.RoleCustomer)
	courier := testutil.SeedUser(t, e.db, "kurir", models.RoleCourier)
	tier := testutil.SeedTier(t, e.db, "REG", "10.00")
	testutil.SeedShipment(t, e.db, "EKS000001", alice, courier, tier)

	var stored []byte
	gomock.InOrder(
		tc.EXPECT().Get(gomock.Any(), "EKS000001").Return(cache.Entry{Version: 7}, nil),
		// stored under the version seen before the row was read
		tc.EXPECT().Set(gomock.Any(), "EKS000001", int64(7), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ int64, raw []byte) error {
				stored = raw
				return nil
			}),
	)

	raw, err := e.tracking.Lookup(ctx, " EKS000001 ")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "EKS000001", body["tracking_code"])
	assert.Equal(t, "alice", body["sender_username"])
	assert.Equal(t, "kurir", body["courier_username"])
	assert.Equal(t, "pending", body["status"])
	assert.JSONEq(t, string(raw), string(stored))

	tc.EXPECT().Get(gomock.Any(), "EKS000001").Return(cache.Entry{Payload: stored, Hit: true, Version: 7}, nil)
	again, err := e.tracking.Lookup(ctx, "EKS000001")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(stored), again)
}

func TestTrackingLookup_CacheDownFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	tc := mock_cache.NewMockTrackingCache(ctrl)
	e := newEnv(t, withCache(tc))

	alice := testutil.SeedUser(t, e.db, "alice", models.RoleCustomer)
	tier := testutil.SeedTier(t, e.db, "REG", "10.00")
	testutil.SeedShipment(t, e.db, "EKS000001", alice, nil, tier)

	tc.EXPECT().Get(gomock.Any(), gomock.Any()).Return(cache.Entry{}, errors.New("connection refused")).Times(2)
	tc.EXPECT().Set(gomock.Any(), "EKS000001", int64(0), gomock.Any()).Return(errors.New("connection refused"))

	raw, err := e.tracking.Lookup(ctx, "EKS000001")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tracking_code":"EKS000001"`)

	_, err = e.tracking.Lookup(ctx, "EKS999999")
	assertAPIError(t, err, http.StatusNotFound, "not_found")
}
