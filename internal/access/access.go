// Package access decides which shipments, packages and history entries a
// user may see. Every list and detail query goes through Scope.
package access

import (
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/models"
)

type Kind int

const (
	Shipments Kind = iota
	Packages
	History
)

// ownerColumn is the shipments column that ties a non-admin user to a
// shipment, or "" when the role sees everything.
func ownerColumn(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return ""
	case models.RoleCourier:
		return "courier_id"
	default:
		return "sender_id"
	}
}

func table(kind Kind) string {
	switch kind {
	case Packages:
		return "packages"
	case History:
		return "status_history"
	default:
		return "shipments"
	}
}

// Scope restricts a query on kind to the rows user may see. A nil user sees
// nothing.
func Scope(user *models.User, kind Kind) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if user == nil {
			return db.Where("1 = 0")
		}
		t := table(kind)
		db = db.Where(t+".is_active = ?", true)

		col := ownerColumn(user.Role)
		if kind == Shipments {
			if col == "" {
				return db
			}
			return db.Where("shipments."+col+" = ?", user.ID)
		}
		// children of a deactivated shipment are hidden for every role
		owned := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.Shipment{}).
			Select("id").
			Where("is_active = ?", true)
		if col != "" {
			owned = owned.Where(col+" = ?", user.ID)
		}
		return db.Where(t+".shipment_id IN (?)", owned)
	}
}

// CanSee applies the shipment rule to an already loaded shipment.
func CanSee(user *models.User, s *models.Shipment) bool {
	if user == nil || s == nil || !s.IsActive {
		return false
	}
	switch ownerColumn(user.Role) {
	case "":
		return true
	case "courier_id":
		return s.CourierID != nil && *s.CourierID == user.ID
	default:
		return s.SenderID == user.ID
	}
}

// CanSeeUser: admins see everybody, everyone else only themselves.
func CanSeeUser(user *models.User, targetID uint) bool {
	if user == nil {
		return false
	}
	return user.Role == models.RoleAdmin || user.ID == targetID
}
