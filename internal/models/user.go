package models

import "time"

type UserRole string

const (
	RoleSupervisor UserRole = "supervisor"
	RoleOperator   UserRole = "operator"
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	TenantID     uint `gorm:"index;not null"`
	Tenant       *Tenant
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	Warehouse    string   `gorm:"size:30;not null"` // almacén donde recibe
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
