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
	"github.com/rotacerta/ekspedisi/internal/codegen"
	"github.com/rotacerta/ekspedisi/internal/events"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/metrics"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/notify"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/totals"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

const createAttempts = 3

type ShipmentService struct {
	db       *gorm.DB
	log      *logger.Logger
	codes    *codegen.Generator
	totals   *totals.Recalculator
	cache    cache.TrackingCache
	events   events.Publisher
	notifier notify.Notifier
}

func NewShipmentService(
	db *gorm.DB,
	log *logger.Logger,
	codes *codegen.Generator,
	recalc *totals.Recalculator,
	tc cache.TrackingCache,
	pub events.Publisher,
	n notify.Notifier,
) *ShipmentService {
	return &ShipmentService{
		db:       db,
		log:      log.With("service", "ShipmentService"),
		codes:    codes,
		totals:   recalc,
		cache:    tc,
		events:   pub,
		notifier: n,
	}
}

// preloadShipment loads everything the shipment JSON shows: tier, sender and
// courier, active packages with their recipient, active history newest first.
func preloadShipment(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ServiceTier").
		Preload("Sender").
		Preload("Courier").
		Preload("Packages", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("id")
		}).
		Preload("Packages.Recipient").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("recorded_at DESC, id DESC")
		})
}

type ShipmentFilter struct {
	Status      string
	ServiceTier string
	Page
}

func (s *ShipmentService) List(ctx context.Context, actor *models.User, f ShipmentFilter) ([]models.Shipment, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Shipment{}).Scopes(access.Scope(actor, access.Shipments))
	if f.Status != "" {
		q = q.Where("shipments.status = ?", f.Status)
	}
	if f.ServiceTier != "" {
		tiers := s.db.WithContext(ctx).Model(&models.ServiceTier{}).Select("id").Where("name = ?", f.ServiceTier)
		q = q.Where("shipments.service_tier_id IN (?)", tiers)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count shipments: %w", err)
	}
	var shipments []models.Shipment
	err := q.Scopes(preloadShipment, f.scope()).
		Order("shipments.shipped_at DESC, shipments.id DESC").
		Find(&shipments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list shipments: %w", err)
	}
	for i := range shipments {
		shipments[i].FillUsernames()
	}
	return shipments, total, nil
}

// Get returns a shipment the actor may see. Shipments outside the actor's
// visible set are reported as missing.
func (s *ShipmentService) Get(ctx context.Context, actor *models.User, id uint) (*models.Shipment, error) {
	var sh models.Shipment
	err := s.db.WithContext(ctx).
		Scopes(access.Scope(actor, access.Shipments), preloadShipment).
		Take(&sh, id).Error
	if err != nil {
		return nil, notFound(err, "shipment")
	}
	sh.FillUsernames()
	return &sh, nil
}

type CreateShipmentInput struct {
	ServiceTierID uint   `json:"service_tier_id"`
	Note          string `json:"note"`
	CourierID     *uint  `json:"courier_id"`
}

// Create opens a shipment sent by the actor. Couriers do not send shipments.
func (s *ShipmentService) Create(ctx context.Context, actor *models.User, in CreateShipmentInput) (*models.Shipment, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff, models.RoleCustomer); err != nil {
		return nil, err
	}
	if in.CourierID != nil && *in.CourierID != 0 && !hasRole(actor, models.RoleAdmin, models.RoleStaff) {
		return nil, apierr.Forbidden()
	}
	fields := map[string]string{}
	msg, err := s.checkTier(ctx, in.ServiceTierID)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		fields["service_tier_id"] = msg
	}
	if in.CourierID != nil && *in.CourierID != 0 {
		msg, err := s.checkCourier(ctx, *in.CourierID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["courier_id"] = msg
		}
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("shipment data is invalid", fields)
	}

	var id uint
	attempt := 0
	err = store.RetryOnConflict(createAttempts, func() error {
		if attempt > 0 {
			metrics.CodeConflictRetriesTotal.WithLabelValues(codegen.TrackingPrefix).Inc()
			if err := s.codes.Resync(ctx, s.db, codegen.TrackingPrefix); err != nil {
				return err
			}
		}
		attempt++
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			code, err := s.codes.Next(ctx, tx, codegen.TrackingPrefix)
			if err != nil {
				return err
			}
			sh := &models.Shipment{
				SenderID:      actor.ID,
				TrackingCode:  code,
				ShippedAt:     utils.Now(),
				Status:        models.StatusPending,
				ServiceTierID: in.ServiceTierID,
				Note:          in.Note,
			}
			if in.CourierID != nil && *in.CourierID != 0 {
				sh.CourierID = in.CourierID
			}
			if err := tx.Create(sh).Error; err != nil {
				return err
			}
			id = sh.ID
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}
	metrics.ShipmentsCreatedTotal.Inc()

	sh, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("Shipment created", "shipment_id", sh.ID, "tracking_code", sh.TrackingCode, "sender_id", actor.ID)
	return sh, nil
}

type UpdateShipmentInput struct {
	Status        *models.ShipmentStatus `json:"status"`
	ServiceTierID *uint                  `json:"service_tier_id"`
	CourierID     *uint                  `json:"courier_id"`
	Note          *string                `json:"note"`
	// recorded on the history entry of a status change
	Location    string `json:"location"`
	Description string `json:"description"`
}

type statusChange struct {
	from, to models.ShipmentStatus
}

// Update applies a partial update. Status changes follow the shipment state
// machine and append a history entry; a tier change reprices the shipment.
//
// Customers may only cancel, couriers may only move the status and edit the
// note, courier assignment is for admin and staff.
func (s *ShipmentService) Update(ctx context.Context, actor *models.User, id uint, in UpdateShipmentInput) (*models.Shipment, error) {
	sh, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && hasRole(actor, models.RoleCustomer) &&
		*in.Status != models.StatusCancelled && *in.Status != sh.Status {
		return nil, apierr.Forbidden()
	}
	if in.CourierID != nil && !hasRole(actor, models.RoleAdmin, models.RoleStaff) {
		return nil, apierr.Forbidden()
	}
	if in.ServiceTierID != nil && hasRole(actor, models.RoleCourier) {
		return nil, apierr.Forbidden()
	}

	fields := map[string]string{}
	if in.ServiceTierID != nil && *in.ServiceTierID != sh.ServiceTierID {
		msg, err := s.checkTier(ctx, *in.ServiceTierID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["service_tier_id"] = msg
		}
	}
	if in.CourierID != nil && *in.CourierID != 0 {
		msg, err := s.checkCourier(ctx, *in.CourierID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["courier_id"] = msg
		}
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("shipment data is invalid", fields)
	}

	var change *statusChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.totals.Lock(ctx, tx, sh.ID); err != nil {
			return err
		}
		var cur models.Shipment
		if err := tx.Take(&cur, sh.ID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if in.Status != nil {
			if err := models.CheckTransition(cur.Status, *in.Status); err != nil {
				return errInvalidTransition(err)
			}
			if *in.Status != cur.Status {
				updates["status"] = *in.Status
				change = &statusChange{from: cur.Status, to: *in.Status}
			}
		}
		repriced := in.ServiceTierID != nil && *in.ServiceTierID != cur.ServiceTierID
		if repriced {
			if cur.Status.Terminal() {
				return apierr.Validation("shipment is already closed", map[string]string{
					"service_tier_id": "cannot change the service tier of a " + string(cur.Status) + " shipment",
				})
			}
			updates["service_tier_id"] = *in.ServiceTierID
		}
		if in.CourierID != nil {
			if *in.CourierID == 0 {
				updates["courier_id"] = nil
			} else {
				updates["courier_id"] = *in.CourierID
			}
		}
		if in.Note != nil {
			updates["note"] = *in.Note
		}
		if len(updates) > 0 {
			if err := tx.Model(&cur).Updates(updates).Error; err != nil {
				return err
			}
		}

		if change != nil {
			entry := models.StatusHistoryEntry{
				ShipmentID:  cur.ID,
				Status:      string(change.to),
				Description: describe(change, in.Description),
				Location:    strings.TrimSpace(in.Location),
				RecordedAt:  utils.Now(),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		if repriced {
			if _, err := s.totals.Recalculate(ctx, tx, cur.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := apierr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("update shipment %d: %w", id, err)
	}

	invalidateTracking(ctx, s.log, s.cache, sh.TrackingCode)
	updated, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if change != nil {
		s.statusChanged(ctx, actor, updated, change, in)
	}
	return updated, nil
}

func describe(c *statusChange, given string) string {
	if d := strings.TrimSpace(given); d != "" {
		return d
	}
	return fmt.Sprintf("status changed from %s to %s", c.from, c.to)
}

// statusChanged runs the side effects of a committed status change. None of
// them can undo the change, so failures are logged and counted only.
func (s *ShipmentService) statusChanged(ctx context.Context, actor *models.User, sh *models.Shipment, c *statusChange, in UpdateShipmentInput) {
	metrics.StatusChangesTotal.WithLabelValues(string(c.to)).Inc()
	s.log.Info("Shipment status changed",
		"shipment_id", sh.ID,
		"tracking_code", sh.TrackingCode,
		"from", c.from,
		"to", c.to,
		"by", actor.ID,
	)

	err := s.events.PublishStatusChanged(ctx, events.StatusChanged{
		ShipmentID:   sh.ID,
		TrackingCode: sh.TrackingCode,
		From:         string(c.from),
		To:           string(c.to),
		Location:     strings.TrimSpace(in.Location),
		Description:  describe(c, in.Description),
		ChangedBy:    actor.ID,
		OccurredAt:   utils.Now(),
	})
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("publish_event").Inc()
		s.log.Error("Publishing status event failed", "tracking_code", sh.TrackingCode, "error", err)
	}

	seen := map[string]bool{}
	for _, p := range sh.Packages {
		r := p.Recipient
		if r == nil || r.Phone == "" || seen[r.Phone] {
			continue
		}
		seen[r.Phone] = true
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.notifier.Send(sendCtx, r.Phone, statusMessage(r.Name, sh.TrackingCode, c.to))
		cancel()
		if err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("notify").Inc()
			s.log.Warn("Recipient notification failed",
				"tracking_code", sh.TrackingCode,
				"phone", utils.MaskPhone(r.Phone),
				"error", err,
			)
		}
	}
}

var statusLabels = map[models.ShipmentStatus]string{
	models.StatusPending:   "menunggu penjemputan",
	models.StatusPickup:    "sudah dijemput kurir",
	models.StatusTransit:   "dalam perjalanan",
	models.StatusDelivered: "sudah diterima",
	models.StatusCancelled: "dibatalkan",
}

func statusMessage(name, trackingCode string, status models.ShipmentStatus) string {
	return fmt.Sprintf("Halo %s, kiriman dengan nomor resi %s %s.", name, trackingCode, statusLabels[status])
}

// Delete deactivates the shipment together with its packages and history.
func (s *ShipmentService) Delete(ctx context.Context, actor *models.User, id uint) error {
	sh, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if hasRole(actor, models.RoleCourier) {
		return apierr.Forbidden()
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.totals.Lock(ctx, tx, sh.ID); err != nil {
			return err
		}
		if err := tx.Model(&models.Shipment{}).Where("id = ?", sh.ID).Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Package{}).Where("shipment_id = ?", sh.ID).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.StatusHistoryEntry{}).Where("shipment_id = ?", sh.ID).Update("is_active", false).Error
	})
	if err != nil {
		return fmt.Errorf("deactivate shipment %d: %w", id, err)
	}
	invalidateTracking(ctx, s.log, s.cache, sh.TrackingCode)
	s.log.Info("Shipment deactivated", "shipment_id", sh.ID, "by", actor.ID)
	return nil
}

// checkTier returns a field message when id is not an active service tier.
// The error is reserved for database failures.
func (s *ShipmentService) checkTier(ctx context.Context, id uint) (string, error) {
	if id == 0 {
		return "this field is required", nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ServiceTier{}).Where("id = ? AND is_active = ?", id, true).Count(&n).Error
	if err != nil {
		return "", fmt.Errorf("check service tier %d: %w", id, err)
	}
	if n == 0 {
		return "unknown service tier", nil
	}
	return "", nil
}

func (s *ShipmentService) checkCourier(ctx context.Context, id uint) (string, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", id, models.RoleCourier, true).
		Count(&n).Error
	if err != nil {
		return "", fmt.Errorf("check courier %d: %w", id, err)
	}
	if n == 0 {
		return "must be an active courier", nil
	}
	return "", nil
}
