package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rotacerta/ekspedisi/internal/access"
	"github.com/rotacerta/ekspedisi/internal/apierr"
	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/codegen"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/media"
	"github.com/rotacerta/ekspedisi/internal/metrics"
	"github.com/rotacerta/ekspedisi/internal/models"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/totals"
)

// PackageService writes packages and keeps the owning shipment's totals in
// step: every write locks the shipment row, changes the package and
// recalculates in the same transaction.
type PackageService struct {
	db     *gorm.DB
	log    *logger.Logger
	codes  *codegen.Generator
	totals *totals.Recalculator
	cache  cache.TrackingCache
	media  *media.Store
}

func NewPackageService(
	db *gorm.DB,
	log *logger.Logger,
	codes *codegen.Generator,
	recalc *totals.Recalculator,
	tc cache.TrackingCache,
	mediaStore *media.Store,
) *PackageService {
	return &PackageService{
		db:     db,
		log:    log.With("service", "PackageService"),
		codes:  codes,
		totals: recalc,
		cache:  tc,
		media:  mediaStore,
	}
}

// errPackageMoved aborts a write whose package changed shipment between the
// first read and the shipment lock. The write starts over from a fresh read.
var errPackageMoved = errors.New("package moved to another shipment")

const writeAttempts = 3

type PackageFilter struct {
	Kind           string
	ShipmentStatus string
	Page
}

func (s *PackageService) List(ctx context.Context, actor *models.User, f PackageFilter) ([]models.Package, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Package{}).Scopes(access.Scope(actor, access.Packages))
	if f.Kind != "" {
		q = q.Where("packages.kind = ?", f.Kind)
	}
	if f.ShipmentStatus != "" {
		shipments := s.db.WithContext(ctx).Model(&models.Shipment{}).Select("id").Where("status = ?", f.ShipmentStatus)
		q = q.Where("packages.shipment_id IN (?)", shipments)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count packages: %w", err)
	}
	var packages []models.Package
	err := q.Preload("Recipient").Scopes(f.scope()).Order("packages.id DESC").Find(&packages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list packages: %w", err)
	}
	return packages, total, nil
}

func (s *PackageService) Get(ctx context.Context, actor *models.User, id uint) (*models.Package, error) {
	var p models.Package
	err := s.db.WithContext(ctx).
		Scopes(access.Scope(actor, access.Packages)).
		Preload("Recipient").
		Take(&p, id).Error
	if err != nil {
		return nil, notFound(err, "package")
	}
	return &p, nil
}

type PackageInput struct {
	ShipmentID      *uint               `json:"shipment_id"`
	RecipientID     *uint               `json:"recipient_id"`
	ItemName        *string             `json:"item_name"`
	ItemDescription *string             `json:"item_description"`
	Weight          *decimal.Decimal    `json:"weight"`
	Length          *decimal.Decimal    `json:"length"`
	Width           *decimal.Decimal    `json:"width"`
	Height          *decimal.Decimal    `json:"height"`
	Kind            *models.PackageKind `json:"kind"`
	DeclaredValue   *decimal.Decimal    `json:"declared_value"`
	Insured         *bool               `json:"insured"`
}

func (in PackageInput) validate(create bool) map[string]string {
	fields := map[string]string{}
	required := func(name string, missing bool) {
		if create && missing {
			fields[name] = "this field is required"
		}
	}
	required("shipment_id", in.ShipmentID == nil || *in.ShipmentID == 0)
	required("recipient_id", in.RecipientID == nil || *in.RecipientID == 0)
	required("weight", in.Weight == nil)
	if in.ItemName == nil && create || in.ItemName != nil && strings.TrimSpace(*in.ItemName) == "" {
		fields["item_name"] = "this field is required"
	}
	if in.Weight != nil && !in.Weight.Round(2).IsPositive() {
		fields["weight"] = "must be greater than 0"
	}
	for name, v := range map[string]*decimal.Decimal{
		"length":         in.Length,
		"width":          in.Width,
		"height":         in.Height,
		"declared_value": in.DeclaredValue,
	} {
		if v != nil && v.IsNegative() {
			fields[name] = "must not be negative"
		}
	}
	if in.Kind != nil && !in.Kind.Valid() {
		fields["kind"] = "must be small or cargo"
	}
	return fields
}

func (in PackageInput) apply(p *models.Package) {
	if in.ShipmentID != nil {
		p.ShipmentID = *in.ShipmentID
	}
	if in.RecipientID != nil {
		p.RecipientID = *in.RecipientID
	}
	if in.ItemName != nil {
		p.ItemName = strings.TrimSpace(*in.ItemName)
	}
	if in.ItemDescription != nil {
		p.ItemDescription = *in.ItemDescription
	}
	round := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = v.Round(2)
		}
	}
	round(&p.Weight, in.Weight)
	round(&p.Length, in.Length)
	round(&p.Width, in.Width)
	round(&p.Height, in.Height)
	round(&p.DeclaredValue, in.DeclaredValue)
	if in.Kind != nil {
		p.Kind = *in.Kind
	}
	if p.Kind == "" {
		p.Kind = models.PackageSmall
	}
	if in.Insured != nil {
		p.Insured = *in.Insured
	}
}

// Create adds a package to an open shipment the actor can see.
func (s *PackageService) Create(ctx context.Context, actor *models.User, in PackageInput) (*models.Package, error) {
	fields := in.validate(true)
	var shipment *models.Shipment
	if in.ShipmentID != nil && *in.ShipmentID != 0 {
		var msg string
		var err error
		shipment, msg, err = s.openShipment(ctx, actor, *in.ShipmentID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["shipment_id"] = msg
		}
	}
	if in.RecipientID != nil && *in.RecipientID != 0 {
		msg, err := s.checkRecipient(ctx, *in.RecipientID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["recipient_id"] = msg
		}
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("package data is invalid", fields)
	}

	var id uint
	attempt := 0
	err := store.RetryOnConflict(createAttempts, func() error {
		if attempt > 0 {
			metrics.CodeConflictRetriesTotal.WithLabelValues(codegen.PackagePrefix).Inc()
			if err := s.codes.Resync(ctx, s.db, codegen.PackagePrefix); err != nil {
				return err
			}
		}
		attempt++
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.totals.Lock(ctx, tx, shipment.ID); err != nil {
				return err
			}
			code, err := s.codes.Next(ctx, tx, codegen.PackagePrefix)
			if err != nil {
				return err
			}
			p := &models.Package{Code: code}
			in.apply(p)
			if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
				return err
			}
			id = p.ID
			_, err = s.totals.Recalculate(ctx, tx, shipment.ID)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	metrics.PackagesCreatedTotal.Inc()
	invalidateTracking(ctx, s.log, s.cache, shipment.TrackingCode)
	return s.Get(ctx, actor, id)
}

// Update applies a partial update. Moving a package to another shipment
// recalculates both shipments.
func (s *PackageService) Update(ctx context.Context, actor *models.User, id uint, in PackageInput) (*models.Package, error) {
	for attempt := 1; ; attempt++ {
		p, err := s.update(ctx, actor, id, in)
		if errors.Is(err, errPackageMoved) && attempt < writeAttempts {
			continue
		}
		return p, err
	}
}

func (s *PackageService) update(ctx context.Context, actor *models.User, id uint, in PackageInput) (*models.Package, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	source, msg, err := s.openShipment(ctx, actor, p.ShipmentID)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		return nil, apierr.Validation("package cannot be changed", map[string]string{"shipment_id": msg})
	}

	fields := in.validate(false)
	target := source
	if in.ShipmentID != nil && *in.ShipmentID != p.ShipmentID {
		target, msg, err = s.openShipment(ctx, actor, *in.ShipmentID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["shipment_id"] = msg
		}
	}
	if in.RecipientID != nil && *in.RecipientID != p.RecipientID {
		msg, err := s.checkRecipient(ctx, *in.RecipientID)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			fields["recipient_id"] = msg
		}
	}
	if len(fields) > 0 {
		return nil, apierr.Validation("package data is invalid", fields)
	}

	affected := []uint{source.ID}
	if target.ID != source.ID {
		affected = append(affected, target.ID)
	}
	// fixed lock order so two opposite moves cannot deadlock
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sid := range affected {
			if err := s.totals.Lock(ctx, tx, sid); err != nil {
				return err
			}
		}
		cur, err := lockedPackage(tx, p.ID, affected)
		if err != nil {
			return err
		}
		in.apply(cur)
		if err := tx.Omit(clause.Associations).Save(cur).Error; err != nil {
			return err
		}
		for _, sid := range affected {
			if _, err := s.totals.Recalculate(ctx, tx, sid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := apierr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("update package %d: %w", id, err)
	}
	invalidateTracking(ctx, s.log, s.cache, source.TrackingCode, target.TrackingCode)
	return s.Get(ctx, actor, id)
}

// Delete deactivates the package and recalculates its shipment.
func (s *PackageService) Delete(ctx context.Context, actor *models.User, id uint) error {
	for attempt := 1; ; attempt++ {
		err := s.remove(ctx, actor, id)
		if errors.Is(err, errPackageMoved) && attempt < writeAttempts {
			continue
		}
		return err
	}
}

func (s *PackageService) remove(ctx context.Context, actor *models.User, id uint) error {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	shipment, msg, err := s.openShipment(ctx, actor, p.ShipmentID)
	if err != nil {
		return err
	}
	if msg != "" {
		return apierr.Validation("package cannot be removed", map[string]string{"shipment_id": msg})
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.totals.Lock(ctx, tx, shipment.ID); err != nil {
			return err
		}
		if _, err := lockedPackage(tx, p.ID, []uint{shipment.ID}); err != nil {
			return err
		}
		if err := tx.Model(&models.Package{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
			return err
		}
		_, err := s.totals.Recalculate(ctx, tx, shipment.ID)
		return err
	})
	if err != nil {
		if _, ok := apierr.As(err); ok {
			return err
		}
		return fmt.Errorf("deactivate package %d: %w", id, err)
	}
	invalidateTracking(ctx, s.log, s.cache, shipment.TrackingCode)
	return nil
}

// lockedPackage re-reads the package once the caller holds the locks of the
// shipments in locked. A package only changes shipment under the lock of its
// current shipment, so finding it in one of them pins it for the rest of tx.
func lockedPackage(tx *gorm.DB, id uint, locked []uint) (*models.Package, error) {
	var cur models.Package
	if err := tx.Where("is_active = ?", true).Take(&cur, id).Error; err != nil {
		return nil, notFound(err, "package")
	}
	for _, sid := range locked {
		if cur.ShipmentID == sid {
			return &cur, nil
		}
	}
	return nil, errPackageMoved
}

// SetPhoto replaces the package photo with a recompressed copy of r.
func (s *PackageService) SetPhoto(ctx context.Context, actor *models.User, id uint, r io.Reader) (*models.Package, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	rel, err := savePhoto(s.media, "packages", r)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Package{}).Where("id = ?", p.ID).Update("photo", rel).Error; err != nil {
		_ = s.media.Remove(rel)
		return nil, fmt.Errorf("store package photo: %w", err)
	}
	if err := s.media.Remove(p.Photo); err != nil {
		s.log.Warn("Could not remove old package photo", "path", p.Photo, "error", err)
	}
	codes, err := trackingCodesOf(ctx, s.db, p.ShipmentID)
	if err == nil {
		invalidateTracking(ctx, s.log, s.cache, codes...)
	}
	return s.Get(ctx, actor, id)
}

// openShipment loads a visible, active shipment that still accepts package
// changes. The message is non-empty when it does not; the error is reserved
// for database failures.
func (s *PackageService) openShipment(ctx context.Context, actor *models.User, id uint) (*models.Shipment, string, error) {
	var sh models.Shipment
	err := s.db.WithContext(ctx).Scopes(access.Scope(actor, access.Shipments)).Take(&sh, id).Error
	if store.IsNotFound(err) {
		return nil, "unknown shipment", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load shipment %d: %w", id, err)
	}
	if sh.Status.Terminal() {
		return nil, "shipment is already " + string(sh.Status), nil
	}
	return &sh, "", nil
}

func (s *PackageService) checkRecipient(ctx context.Context, id uint) (string, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Recipient{}).Where("id = ? AND is_active = ?", id, true).Count(&n).Error
	if err != nil {
		return "", fmt.Errorf("check recipient %d: %w", id, err)
	}
	if n == 0 {
		return "unknown recipient", nil
	}
	return "", nil
}
