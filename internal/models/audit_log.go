package models

import "time"

type AuditAction string

const (
	AuditActionReceipt        AuditAction = "receipt"
	AuditActionSupplierReturn AuditAction = "supplier_return"
	AuditActionBoxRelease     AuditAction = "box_release"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TenantID uint `gorm:"index" json:"tenant_id"`

	UserID   uint   `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"`

	// "receipt", "return", "box"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   string `gorm:"size:60;index" json:"entity_id"`

	Action      AuditAction `gorm:"size:30" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	Data string `gorm:"type:jsonb" json:"data"`
}
