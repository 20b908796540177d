package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/totals"
	"github.com/rotacerta/ekspedisi/internal/utils"
)

// CatalogService manages the reference data shipments point at: service
// tiers and recipients.
type CatalogService struct {
	db     *gorm.DB
	log    *logger.Logger
	totals *totals.Recalculator
	cache  cache.TrackingCache
}

func NewCatalogService(db *gorm.DB, log *logger.Logger, recalc *totals.Recalculator, tc cache.TrackingCache) *CatalogService {
	return &CatalogService{
		db:     db,
		log:    log.With("service", "CatalogService"),
		totals: recalc,
		cache:  tc,
	}
}

// ---- service tiers ----

type TierFilter struct {
	Name string
	Page
}

func (s *CatalogService) ListTiers(ctx context.Context, f TierFilter) ([]models.ServiceTier, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ServiceTier{}).Where("is_active = ?", true)
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count service tiers: %w", err)
	}
	var tiers []models.ServiceTier
	if err := q.Scopes(f.scope()).Order("name, id").Find(&tiers).Error; err != nil {
		return nil, 0, fmt.Errorf("list service tiers: %w", err)
	}
	return tiers, total, nil
}

func (s *CatalogService) GetTier(ctx context.Context, id uint) (*models.ServiceTier, error) {
	var tier models.ServiceTier
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Take(&tier, id).Error; err != nil {
		return nil, notFound(err, "service tier")
	}
	return &tier, nil
}

type TierInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	RatePerKg   *decimal.Decimal `json:"rate_per_kg"`
}

func (in TierInput) validate(create bool) error {
	fields := map[string]string{}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" || create && in.Name == nil {
		fields["name"] = "this field is required"
	}
	if in.RatePerKg == nil && create {
		fields["rate_per_kg"] = "this field is required"
	} else if in.RatePerKg != nil && in.RatePerKg.IsNegative() {
		fields["rate_per_kg"] = "must not be negative"
	}
	if len(fields) > 0 {
		return apierr.Validation("service tier data is invalid", fields)
	}
	return nil
}

func (s *CatalogService) CreateTier(ctx context.Context, actor *models.User, in TierInput) (*models.ServiceTier, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	tier := &models.ServiceTier{
		Name:      strings.TrimSpace(*in.Name),
		RatePerKg: in.RatePerKg.Round(2),
	}
	if in.Description != nil {
		tier.Description = *in.Description
	}
	if err := s.db.WithContext(ctx).Create(tier).Error; err != nil {
		return nil, fmt.Errorf("create service tier: %w", err)
	}
	return tier, nil
}

// UpdateTier reprices every open shipment on the tier when the rate changes.
// Delivered and cancelled shipments keep the cost they closed with.
func (s *CatalogService) UpdateTier(ctx context.Context, actor *models.User, id uint, in TierInput) (*models.ServiceTier, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	tier, err := s.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	repriced := in.RatePerKg != nil && !in.RatePerKg.Round(2).Equal(tier.RatePerKg)
	if in.RatePerKg != nil {
		updates["rate_per_kg"] = in.RatePerKg.Round(2)
	}
	if len(updates) == 0 {
		return tier, nil
	}

	var codes []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(tier).Updates(updates).Error; err != nil {
			return err
		}
		if !repriced {
			return nil
		}
		var ids []uint
		err := tx.Model(&models.Shipment{}).
			Where("service_tier_id = ? AND is_active = ? AND status NOT IN ?", tier.ID, true,
				[]models.ShipmentStatus{models.StatusDelivered, models.StatusCancelled}).
			Order("id").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		for _, sid := range ids {
			shipment, err := s.totals.Recalculate(ctx, tx, sid)
			if err != nil {
				return err
			}
			codes = append(codes, shipment.TrackingCode)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update service tier %d: %w", id, err)
	}
	if repriced {
		s.log.Info("Service tier repriced", "tier_id", tier.ID, "shipments", len(codes))
	}
	invalidateTracking(ctx, s.log, s.cache, codes...)
	return s.GetTier(ctx, id)
}

func (s *CatalogService) DeleteTier(ctx context.Context, actor *models.User, id uint) error {
	if err := requireRole(actor, models.RoleAdmin, models.RoleStaff); err != nil {
		return err
	}
	tier, err := s.GetTier(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(tier).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate service tier %d: %w", id, err)
	}
	return nil
}

// ---- recipients ----

type RecipientFilter struct {
	Name string
	City string
	Page
}

func (s *CatalogService) ListRecipients(ctx context.Context, f RecipientFilter) ([]models.Recipient, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Recipient{}).Where("is_active = ?", true)
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count recipients: %w", err)
	}
	var recipients []models.Recipient
	if err := q.Scopes(f.scope()).Order("created_at DESC, id DESC").Find(&recipients).Error; err != nil {
		return nil, 0, fmt.Errorf("list recipients: %w", err)
	}
	return recipients, total, nil
}

func (s *CatalogService) GetRecipient(ctx context.Context, id uint) (*models.Recipient, error) {
	var r models.Recipient
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Take(&r, id).Error; err != nil {
		return nil, notFound(err, "recipient")
	}
	return &r, nil
}

type RecipientInput struct {
	Name       *string `json:"name"`
	Address    *string `json:"address"`
	Phone      *string `json:"phone"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
}

func (in RecipientInput) validate(create bool) error {
	fields := map[string]string{}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" || create && in.Name == nil {
		fields["name"] = "this field is required"
	}
	if in.Phone != nil && *in.Phone != "" && !utils.IsValidPhone(*in.Phone) {
		fields["phone"] = "enter a valid phone number"
	}
	if in.PostalCode != nil && len(strings.TrimSpace(*in.PostalCode)) > 10 {
		fields["postal_code"] = "at most 10 characters"
	}
	if len(fields) > 0 {
		return apierr.Validation("recipient data is invalid", fields)
	}
	return nil
}

func (in RecipientInput) apply(r *models.Recipient) {
	if in.Name != nil {
		r.Name = strings.TrimSpace(*in.Name)
	}
	if in.Address != nil {
		r.Address = *in.Address
	}
	if in.Phone != nil {
		r.Phone = utils.SanitizePhone(*in.Phone)
	}
	if in.City != nil {
		r.City = strings.TrimSpace(*in.City)
	}
	if in.PostalCode != nil {
		r.PostalCode = strings.TrimSpace(*in.PostalCode)
	}
}

func (s *CatalogService) CreateRecipient(ctx context.Context, in RecipientInput) (*models.Recipient, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}
	r := &models.Recipient{}
	in.apply(r)
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}
	return r, nil
}

func (s *CatalogService) UpdateRecipient(ctx context.Context, id uint, in RecipientInput) (*models.Recipient, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}
	r, err := s.GetRecipient(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(r)
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return nil, fmt.Errorf("update recipient %d: %w", id, err)
	}
	return r, nil
}

func (s *CatalogService) DeleteRecipient(ctx context.Context, id uint) error {
	r, err := s.GetRecipient(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(r).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate recipient %d: %w", id, err)
	}
	return nil
}
