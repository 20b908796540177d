package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
)

type DashboardStats struct {
	TotalShipments     int64 `json:"total_shipments"`
	PendingShipments   int64 `json:"pending_shipments"`
	TransitShipments   int64 `json:"transit_shipments"`
	DeliveredShipments int64 `json:"delivered_shipments"`
	TotalPackages      int64 `json:"total_packages"`
	TotalUsers         int64 `json:"total_users"`
}

type DashboardService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDashboardService(db *gorm.DB, log *logger.Logger) *DashboardService {
	return &DashboardService{db: db, log: log.With("service", "DashboardService")}
}

// Stats counts active records. Admins get global numbers; everyone else gets
// numbers over the shipments they sent.
func (s *DashboardService) Stats(ctx context.Context, actor *models.User) (*DashboardStats, error) {
	admin := hasRole(actor, models.RoleAdmin)
	shipments := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Shipment{}).Where("is_active = ?", true)
		if !admin {
			q = q.Where("sender_id = ?", actor.ID)
		}
		return q
	}

	var out DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, q func() *gorm.DB) {
		g.Go(func() error {
			return q().WithContext(gctx).Count(dst).Error
		})
	}
	byStatus := func(st models.ShipmentStatus) func() *gorm.DB {
		return func() *gorm.DB { return shipments().Where("status = ?", st) }
	}

	count(&out.TotalShipments, shipments)
	count(&out.PendingShipments, byStatus(models.StatusPending))
	count(&out.TransitShipments, byStatus(models.StatusTransit))
	count(&out.DeliveredShipments, byStatus(models.StatusDelivered))
	count(&out.TotalPackages, func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Package{}).Where("is_active = ?", true)
		if !admin {
			owned := s.db.WithContext(ctx).Model(&models.Shipment{}).Select("id").Where("sender_id = ?", actor.ID)
			q = q.Where("shipment_id IN (?)", owned)
		}
		return q
	})
	if admin {
		count(&out.TotalUsers, func() *gorm.DB {
			return s.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true)
		})
	} else {
		out.TotalUsers = 1
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &out, nil
}
