// Package service holds the business rules behind the HTTP API. Services take
// the acting user explicitly and return *apierr.Error values for anything the
// caller did wrong; every other error is a server fault.
package service

import (
	"context"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/metrics"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/store"
)

// Page selects one page of a list; zero values mean the defaults.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) scope() func(*gorm.DB) *gorm.DB {
	return store.Paginate(p.Page, p.PageSize)
}

func errInvalidTransition(err error) error {
	return apierr.New(http.StatusBadRequest, "invalid_transition", err)
}

// notFound turns a missing row into a 404 for what and wraps anything else.
func notFound(err error, what string) error {
	if store.IsNotFound(err) {
		return apierr.NotFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func hasRole(user *models.User, roles ...models.Role) bool {
	if user == nil {
		return false
	}
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

func requireRole(user *models.User, roles ...models.Role) error {
	if !hasRole(user, roles...) {
		return apierr.Forbidden()
	}
	return nil
}

// invalidateTracking drops cached tracking responses. Failures only cost
// freshness until the TTL runs out, so they are logged and counted.
func invalidateTracking(ctx context.Context, log *logger.Logger, c cache.TrackingCache, codes ...string) {
	if c == nil || len(codes) == 0 {
		return
	}
	if err := c.Invalidate(ctx, codes...); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("cache_invalidate").Inc()
		log.Warn("Tracking cache invalidation failed", "codes", codes, "error", err)
	}
}

// trackingCodesOf returns the tracking codes of the given shipment ids.
func trackingCodesOf(ctx context.Context, db *gorm.DB, ids ...uint) ([]string, error) {
	var codes []string
	if len(ids) == 0 {
		return codes, nil
	}
	err := db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id IN ?", ids).
		Pluck("tracking_code", &codes).Error
	return codes, err
}
