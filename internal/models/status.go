package models

import "fmt"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCourier  Role = "courier"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCourier, RoleCustomer:
		return true
	}
	return false
}

type PackageKind string

const (
	PackageSmall PackageKind = "small"
	PackageCargo PackageKind = "cargo"
)

func (k PackageKind) Valid() bool {
	return k == PackageSmall || k == PackageCargo
}

type ShipmentStatus string

const (
	StatusPending   ShipmentStatus = "pending"
	StatusPickup    ShipmentStatus = "pickup"
	StatusTransit   ShipmentStatus = "transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusCancelled ShipmentStatus = "cancelled"
)

// position in the forward chain; cancelled is off-chain
var statusOrder = map[ShipmentStatus]int{
	StatusPending:   0,
	StatusPickup:    1,
	StatusTransit:   2,
	StatusDelivered: 3,
}

func (s ShipmentStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok || s == StatusCancelled
}

func (s ShipmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ErrInvalidTransition is returned by CheckTransition.
type ErrInvalidTransition struct {
	From, To ShipmentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot change status from %q to %q", e.From, e.To)
}

// CheckTransition allows moving forward along pending -> pickup -> transit ->
// delivered (steps may be skipped) and cancelling from any non-terminal
// status. Re-applying the current status is a no-op and allowed.
func CheckTransition(from, to ShipmentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return &ErrInvalidTransition{From: from, To: to}
	}
	if to == StatusCancelled {
		return nil
	}
	if statusOrder[to] > statusOrder[from] {
		return nil
	}
	return &ErrInvalidTransition{From: from, To: to}
}
