package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/metrics"
	"github.com/rotacerta/ekspedisi/internal/models"
)

// TrackingService answers the public lookup by tracking code. Responses are
// cached as rendered JSON; writers invalidate the key.
type TrackingService struct {
	db    *gorm.DB
	log   *logger.Logger
	cache cache.TrackingCache
}

func NewTrackingService(db *gorm.DB, log *logger.Logger, tc cache.TrackingCache) *TrackingService {
	return &TrackingService{db: db, log: log.With("service", "TrackingService"), cache: tc}
}

// Lookup returns the shipment JSON for an active shipment. A cache outage
// falls back to the database.
func (s *TrackingService) Lookup(ctx context.Context, code string) (json.RawMessage, error) {
	code = strings.TrimSpace(code)
	entry, err := s.cache.Get(ctx, code)
	switch {
	case err != nil:
		metrics.TrackingCacheTotal.WithLabelValues("error").Inc()
		s.log.Warn("Tracking cache read failed", "tracking_code", code, "error", err)
	case entry.Hit:
		metrics.TrackingCacheTotal.WithLabelValues("hit").Inc()
		return entry.Payload, nil
	default:
		metrics.TrackingCacheTotal.WithLabelValues("miss").Inc()
	}

	var sh models.Shipment
	err = s.db.WithContext(ctx).
		Scopes(preloadShipment).
		Where("tracking_code = ? AND is_active = ?", code, true).
		Take(&sh).Error
	if err != nil {
		return nil, notFound(err, "tracking code")
	}
	sh.FillUsernames()

	raw, err := json.Marshal(&sh)
	if err != nil {
		return nil, fmt.Errorf("encode shipment %s: %w", code, err)
	}
	// entry.Version was read before the row; Set drops raw if a writer
	// invalidated the code since
	if err := s.cache.Set(ctx, code, entry.Version, raw); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("cache_set").Inc()
		s.log.Warn("Tracking cache write failed", "tracking_code", code, "error", err)
	}
	return raw, nil
}
