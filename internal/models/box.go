package models

import "time"

// Box: physical picking box. Folio is empty while the box is free.
type Box struct {
	ID        uint   `gorm:"primaryKey"`
	TenantID  uint   `gorm:"uniqueIndex:idx_box_tenant_code;not null"`
	Warehouse string `gorm:"size:30;index;not null"`
	Code      string `gorm:"size:30;uniqueIndex:idx_box_tenant_code;not null"`
	Name      string `gorm:"size:60"`
	Folio     string `gorm:"size:40;index"`
	Articles  int    `gorm:"not null;default:0"`
	Units     int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

type BoxAssignment struct {
	ID                uint   `gorm:"primaryKey"`
	TenantID          uint   `gorm:"index;not null"`
	BoxID             uint   `gorm:"index;not null"`
	ReservationLineID uint   `gorm:"index;not null"`
	Code              string `gorm:"size:40;not null"`
	Folio             string `gorm:"size:40;index;not null"`
	Units             int    `gorm:"not null"`
	Operator          string `gorm:"size:40"`
	CreatedAt         time.Time
}
