package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Common columns for every table
type Base struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// System user
type User struct {
	Base
	Username     string   `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string   `gorm:"size:254" json:"email"`
	PasswordHash string   `gorm:"not null" json:"-"`
	Role         Role     `gorm:"size:20;not null;default:customer;index" json:"role"`
	Profile      *Profile `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

// Profile holds the contact details of a user.
type Profile struct {
	Base
	UserID   uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	FullName string `gorm:"size:255" json:"full_name"`
	Address  string `gorm:"type:text" json:"address"`
	Phone    string `gorm:"size:20" json:"phone"`
	Email    string `gorm:"size:254" json:"email"`
	Photo    string `gorm:"size:255" json:"photo,omitempty"`
}

// AuthToken is the server side half of a bearer token. Deleting the row
// revokes the token even before it expires.
type AuthToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	TokenID   string    `gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Service tier used to price shipments
type ServiceTier struct {
	Base
	Name        string          `gorm:"size:100;not null;index" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	RatePerKg   decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"rate_per_kg"`
}

// Package recipient
type Recipient struct {
	Base
	Name       string `gorm:"size:255;not null;index" json:"name"`
	Address    string `gorm:"type:text" json:"address"`
	Phone      string `gorm:"size:20" json:"phone"`
	City       string `gorm:"size:100;index" json:"city"`
	PostalCode string `gorm:"size:10" json:"postal_code"`
}

// Shipment
type Shipment struct {
	Base
	SenderID      uint                 `gorm:"index;not null" json:"sender_id"`
	Sender        *User                `gorm:"foreignKey:SenderID" json:"-"`
	CourierID     *uint                `gorm:"index" json:"courier_id"`
	Courier       *User                `gorm:"foreignKey:CourierID" json:"-"`
	SenderName    string               `gorm:"-" json:"sender_username,omitempty"`
	CourierName   string               `gorm:"-" json:"courier_username,omitempty"`
	TrackingCode  string               `gorm:"size:20;uniqueIndex;not null" json:"tracking_code"`
	ShippedAt     time.Time            `gorm:"index" json:"shipped_at"`
	Status        ShipmentStatus       `gorm:"size:20;not null;default:pending;index" json:"status"`
	ServiceTierID uint                 `gorm:"index;not null" json:"service_tier_id"`
	ServiceTier   *ServiceTier         `json:"service_tier_detail,omitempty"`
	TotalWeight   decimal.Decimal      `gorm:"type:numeric(10,2);not null;default:0" json:"total_weight"`
	TotalCost     decimal.Decimal      `gorm:"type:numeric(15,2);not null;default:0" json:"total_cost"`
	Note          string               `gorm:"type:text" json:"note"`
	Packages      []Package            `gorm:"constraint:OnDelete:CASCADE" json:"packages,omitempty"`
	History       []StatusHistoryEntry `gorm:"constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

// Package inside a shipment
type Package struct {
	Base
	ShipmentID      uint            `gorm:"index;not null" json:"shipment_id"`
	Shipment        *Shipment       `json:"-"`
	RecipientID     uint            `gorm:"index;not null" json:"recipient_id"`
	Recipient       *Recipient      `json:"recipient_detail,omitempty"`
	Code            string          `gorm:"size:20;uniqueIndex;not null" json:"code"`
	ItemName        string          `gorm:"size:255;not null" json:"item_name"`
	ItemDescription string          `gorm:"type:text" json:"item_description"`
	Weight          decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"weight"`
	Length          decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"length"`
	Width           decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"width"`
	Height          decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"height"`
	Kind            PackageKind     `gorm:"size:20;not null;default:small" json:"kind"`
	DeclaredValue   decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"declared_value"`
	Insured         bool            `gorm:"not null;default:false" json:"insured"`
	Photo           string          `gorm:"size:255" json:"photo,omitempty"`
}

// Status history of a shipment, newest first
type StatusHistoryEntry struct {
	Base
	ShipmentID  uint      `gorm:"index;not null" json:"shipment_id"`
	Shipment    *Shipment `json:"-"`
	Status      string    `gorm:"size:100;not null;index" json:"status"`
	Description string    `gorm:"type:text" json:"description"`
	Location    string    `gorm:"size:255" json:"location"`
	RecordedAt  time.Time `gorm:"index" json:"recorded_at"`
}

// FillUsernames copies the usernames of the preloaded sender and courier
// into their JSON fields.
func (s *Shipment) FillUsernames() {
	if s.Sender != nil {
		s.SenderName = s.Sender.Username
	}
	if s.Courier != nil {
		s.CourierName = s.Courier.Username
	}
}

func (StatusHistoryEntry) TableName() string {
	return "status_history"
}

// Last allocated number per code prefix
type CodeCounter struct {
	Prefix    string `gorm:"primaryKey;size:10"`
	LastValue int64  `gorm:"not null"`
	UpdatedAt time.Time
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Profile{},
		&AuthToken{},
		&ServiceTier{},
		&Recipient{},
		&Shipment{},
		&Package{},
		&StatusHistoryEntry{},
		&CodeCounter{},
	)
}
