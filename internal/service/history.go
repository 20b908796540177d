package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/access"
	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

// HistoryService manages free form tracking entries (scans, notes) next to
// the ones the status machine records.
type HistoryService struct {
	db    *gorm.DB
	log   *logger.Logger
	cache cache.TrackingCache
}

func NewHistoryService(db *gorm.DB, log *logger.Logger, tc cache.TrackingCache) *HistoryService {
	return &HistoryService{
		db:    db,
		log:   log.With("service", "HistoryService"),
		cache: tc,
	}
}

type HistoryFilter struct {
	TrackingCode string
	Status       string
	Page
}

func (s *HistoryService) List(ctx context.Context, actor *models.User, f HistoryFilter) ([]models.StatusHistoryEntry, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.StatusHistoryEntry{}).Scopes(access.Scope(actor, access.History))
	if f.TrackingCode != "" {
		shipments := s.db.WithContext(ctx).Model(&models.Shipment{}).Select("id").Where("tracking_code = ?", f.TrackingCode)
		q = q.Where("status_history.shipment_id IN (?)", shipments)
	}
	if f.Status != "" {
		q = q.Where("status_history.status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	var entries []models.StatusHistoryEntry
	err := q.Scopes(f.scope()).
		Order("status_history.recorded_at DESC, status_history.id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return entries, total, nil
}

func (s *HistoryService) Get(ctx context.Context, actor *models.User, id uint) (*models.StatusHistoryEntry, error) {
	var e models.StatusHistoryEntry
	if err := s.db.WithContext(ctx).Scopes(access.Scope(actor, access.History)).Take(&e, id).Error; err != nil {
		return nil, notFound(err, "status history entry")
	}
	return &e, nil
}

type HistoryInput struct {
	ShipmentID  *uint      `json:"shipment_id"`
	Status      *string    `json:"status"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	RecordedAt  *time.Time `json:"recorded_at"`
}

func (in HistoryInput) validate(create bool) error {
	fields := map[string]string{}
	if create && (in.ShipmentID == nil || *in.ShipmentID == 0) {
		fields["shipment_id"] = "this field is required"
	}
	if in.Status == nil && create || in.Status != nil && strings.TrimSpace(*in.Status) == "" {
		fields["status"] = "this field is required"
	} else if in.Status != nil && len(*in.Status) > 100 {
		fields["status"] = "at most 100 characters"
	}
	if len(fields) > 0 {
		return apierr.Validation("status history data is invalid", fields)
	}
	return nil
}

func (in HistoryInput) apply(e *models.StatusHistoryEntry) {
	if in.ShipmentID != nil {
		e.ShipmentID = *in.ShipmentID
	}
	if in.Status != nil {
		e.Status = strings.TrimSpace(*in.Status)
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		e.Location = strings.TrimSpace(*in.Location)
	}
	if in.RecordedAt != nil {
		e.RecordedAt = in.RecordedAt.UTC()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = utils.Now()
	}
}

// Create appends an entry to a shipment the actor can see. Customers read
// history but do not write it.
func (s *HistoryService) Create(ctx context.Context, actor *models.User, in HistoryInput) (*models.StatusHistoryEntry, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff, models.RoleCourier); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	shipment, err := s.visibleShipment(ctx, actor, *in.ShipmentID)
	if err != nil {
		return nil, err
	}

	e := &models.StatusHistoryEntry{}
	in.apply(e)
	if err := s.db.WithContext(ctx).Omit("Shipment").Create(e).Error; err != nil {
		return nil, fmt.Errorf("create history entry: %w", err)
	}
	invalidateTracking(ctx, s.log, s.cache, shipment.TrackingCode)
	return e, nil
}

func (s *HistoryService) Update(ctx context.Context, actor *models.User, id uint, in HistoryInput) (*models.StatusHistoryEntry, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff, models.RoleCourier); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	shipmentIDs := []uint{e.ShipmentID}
	if in.ShipmentID != nil && *in.ShipmentID != e.ShipmentID {
		if _, err := s.visibleShipment(ctx, actor, *in.ShipmentID); err != nil {
			return nil, err
		}
		shipmentIDs = append(shipmentIDs, *in.ShipmentID)
	}
	in.apply(e)
	if err := s.db.WithContext(ctx).Omit("Shipment").Save(e).Error; err != nil {
		return nil, fmt.Errorf("update history entry %d: %w", id, err)
	}
	if tracking, err := trackingCodesOf(ctx, s.db, shipmentIDs...); err == nil {
		invalidateTracking(ctx, s.log, s.cache, tracking...)
	}
	return e, nil
}

func (s *HistoryService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff, models.RoleCourier); err != nil {
		return err
	}
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.StatusHistoryEntry{}).Where("id = ?", e.ID).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate history entry %d: %w", id, err)
	}
	if tracking, err := trackingCodesOf(ctx, s.db, e.ShipmentID); err == nil {
		invalidateTracking(ctx, s.log, s.cache, tracking...)
	}
	return nil
}

func (s *HistoryService) visibleShipment(ctx context.Context, actor *models.User, id uint) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.WithContext(ctx).Scopes(access.Scope(actor, access.Shipments)).Take(&sh, id).Error
	if err != nil && !store.IsNotFound(err) {
		return nil, fmt.Errorf("load shipment %d: %w", id, err)
	}
	if err != nil {
		return nil, apierr.Validation("status history data is invalid", map[string]string{
			"shipment_id": "unknown shipment",
		})
	}
	return &sh, nil
}
