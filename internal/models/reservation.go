package models

import "time"

type ReservationKind string

const (
	ReservationCustomerOrder ReservationKind = "order"
	ReservationTransfer      ReservationKind = "transfer"
)

// ReservationLine: units of an article promised to a customer order or a
// transfer, waiting for merchandise. Open while Assigned < Pending.
type ReservationLine struct {
	ID         uint            `gorm:"primaryKey"`
	TenantID   uint            `gorm:"index:idx_resv_lookup;not null"`
	Warehouse  string          `gorm:"size:30;index:idx_resv_lookup;not null"`
	Code       string          `gorm:"size:40;index:idx_resv_lookup;not null"`
	Folio      string          `gorm:"size:40;index;not null"`
	Kind       ReservationKind `gorm:"size:20;not null"`
	TransferID string          `gorm:"size:40"`
	// BoxCode, when set, is the box the demand was pre-assigned to.
	BoxCode   string `gorm:"size:30"`
	Pending   int    `gorm:"not null"`
	Assigned  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r ReservationLine) Open() int {
	if r.Pending > r.Assigned {
		return r.Pending - r.Assigned
	}
	return 0
}
