// Package totals keeps a shipment's total weight and cost in line with its
// packages.
package totals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/models"
)

// ErrMissingServiceTier means the shipment cannot be priced. Shipments must
// reference a tier before they accept packages.
var ErrMissingServiceTier = errors.New("shipment has no service tier")

var ErrShipmentNotFound = errors.New("shipment not found")

type Recalculator struct{}

func New() *Recalculator {
	return &Recalculator{}
}

// Lock takes the shipment row lock for the rest of tx. Package writers call
// it before touching a shipment's packages so that concurrent writers on the
// same shipment run one after another.
func (r *Recalculator) Lock(ctx context.Context, tx *gorm.DB, shipmentID uint) error {
	res := tx.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		UpdateColumn("updated_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("lock shipment %d: %w", shipmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrShipmentNotFound
	}
	return nil
}

// Recalculate recomputes the totals from the shipment's active packages and
// stores them. It is a full recomputation, never an adjustment.
func (r *Recalculator) Recalculate(ctx context.Context, tx *gorm.DB, shipmentID uint) (*models.Shipment, error) {
	if err := r.Lock(ctx, tx, shipmentID); err != nil {
		return nil, err
	}

	var shipment models.Shipment
	if err := tx.WithContext(ctx).Preload("ServiceTier").First(&shipment, shipmentID).Error; err != nil {
		return nil, fmt.Errorf("load shipment %d: %w", shipmentID, err)
	}
	if shipment.ServiceTierID == 0 || shipment.ServiceTier == nil {
		return nil, fmt.Errorf("shipment %s: %w", shipment.TrackingCode, ErrMissingServiceTier)
	}

	var raw []string
	err := tx.WithContext(ctx).
		Model(&models.Package{}).
		Where("shipment_id = ? AND is_active = ?", shipmentID, true).
		Pluck("weight", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("load package weights: %w", err)
	}
	weights := make([]decimal.Decimal, 0, len(raw))
	for _, w := range raw {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return nil, fmt.Errorf("package weight %q: %w", w, err)
		}
		weights = append(weights, d)
	}

	total := Sum(weights)
	shipment.TotalWeight = total
	shipment.TotalCost = Cost(total, shipment.ServiceTier.RatePerKg)

	err = tx.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		UpdateColumns(map[string]interface{}{
			"total_weight": shipment.TotalWeight,
			"total_cost":   shipment.TotalCost,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("store totals: %w", err)
	}
	return &shipment, nil
}

func Sum(weights []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	return total
}

// Cost rounds to cents like the total_cost column.
func Cost(weight, ratePerKg decimal.Decimal) decimal.Decimal {
	return weight.Mul(ratePerKg).Round(2)
}
