// Package codegen allocates the human readable, sequential codes printed on
// shipments (EKS000001) and packages (PKT000001).
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rotacerta/ekspedisi/internal/models"
)

const (
	TrackingPrefix = "EKS"
	PackagePrefix  = "PKT"
	DefaultWidth   = 6
)

// ErrCorruptCode means a stored code does not match prefix + digits. It is a
// data/configuration fault, not something a request can recover from.
var ErrCorruptCode = errors.New("corrupt code")

func Format(prefix string, n int64, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

func ParseSuffix(prefix, code string) (int64, error) {
	if !strings.HasPrefix(code, prefix) {
		return 0, fmt.Errorf("%w: %q lacks prefix %q", ErrCorruptCode, code, prefix)
	}
	n, err := strconv.ParseInt(code[len(prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrCorruptCode, code)
	}
	return n, nil
}

// source is where codes for a prefix already live; used once to seed the
// counter of a database that predates it.
type source struct {
	model  interface{}
	column string
}

type Generator struct {
	width   int
	sources map[string]source
}

func New() *Generator {
	return &Generator{
		width: DefaultWidth,
		sources: map[string]source{
			TrackingPrefix: {model: &models.Shipment{}, column: "tracking_code"},
			PackagePrefix:  {model: &models.Package{}, column: "code"},
		},
	}
}

// Next allocates the next code for prefix. It must run inside the
// transaction that inserts the coded record: the counter row stays locked
// until that transaction ends, so concurrent allocations serialize.
func (g *Generator) Next(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		res := tx.WithContext(ctx).
			Model(&models.CodeCounter{}).
			Where("prefix = ?", prefix).
			UpdateColumn("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return "", fmt.Errorf("increment %s counter: %w", prefix, res.Error)
		}
		if res.RowsAffected > 0 {
			var counter models.CodeCounter
			if err := tx.WithContext(ctx).Where("prefix = ?", prefix).Take(&counter).Error; err != nil {
				return "", fmt.Errorf("read %s counter: %w", prefix, err)
			}
			return Format(prefix, counter.LastValue, g.width), nil
		}

		last, err := g.lastExisting(ctx, tx, prefix)
		if err != nil {
			return "", err
		}
		counter := models.CodeCounter{Prefix: prefix, LastValue: last + 1}
		res = tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&counter)
		if res.Error != nil {
			return "", fmt.Errorf("seed %s counter: %w", prefix, res.Error)
		}
		if res.RowsAffected > 0 {
			return Format(prefix, counter.LastValue, g.width), nil
		}
		// another transaction seeded it first; increment theirs
	}
	return "", fmt.Errorf("allocate %s code: counter contention", prefix)
}

// Resync moves the counter for prefix past the highest stored code. Callers
// run it after an insert collided with an existing code, which means the
// counter fell behind the data (rows copied in by hand, a restored dump).
func (g *Generator) Resync(ctx context.Context, db *gorm.DB, prefix string) error {
	last, err := g.lastExisting(ctx, db, prefix)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).
		Model(&models.CodeCounter{}).
		Where("prefix = ? AND last_value < ?", prefix, last).
		UpdateColumn("last_value", last).Error
	if err != nil {
		return fmt.Errorf("resync %s counter: %w", prefix, err)
	}
	return nil
}

// lastExisting reads the suffix of the highest stored code with the prefix,
// or 0 when there is none. Longer codes sort first so EKS1000000 beats
// EKS999999.
func (g *Generator) lastExisting(ctx context.Context, tx *gorm.DB, prefix string) (int64, error) {
	src, ok := g.sources[prefix]
	if !ok {
		return 0, nil
	}
	var codes []string
	err := tx.WithContext(ctx).
		Model(src.model).
		Where(src.column+" LIKE ?", prefix+"%").
		Order("LENGTH(" + src.column + ") DESC").
		Order(src.column + " DESC").
		Limit(1).
		Pluck(src.column, &codes).Error
	if err != nil {
		return 0, fmt.Errorf("scan last %s code: %w", prefix, err)
	}
	if len(codes) == 0 {
		return 0, nil
	}
	return ParseSuffix(prefix, codes[0])
}
