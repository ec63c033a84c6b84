package models

import "time"

// Tenant: one company database. Code is what operators and tokens carry.
type Tenant struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"size:30;not null;uniqueIndex"`
	Name      string `gorm:"size:100;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
