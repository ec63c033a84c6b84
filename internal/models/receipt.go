package models

import "time"

// Receipt: committed reception of one purchase order. IdempotencyKey makes a
// resubmitted payload return the existing receipt.
type Receipt struct {
	ID              uint   `gorm:"primaryKey"`
	TenantID        uint   `gorm:"index;not null"`
	Folio           string `gorm:"size:40;uniqueIndex;not null"`
	PurchaseOrderID uint   `gorm:"index;not null"`
	Operator        string `gorm:"size:40"`
	Backorder       bool   `gorm:"not null;default:false"`
	IdempotencyKey  string `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt       time.Time

	Lines []ReceiptLine `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
}

type ReceiptLine struct {
	ID        uint   `gorm:"primaryKey"`
	ReceiptID uint   `gorm:"index;not null"`
	Code      string `gorm:"size:40;not null"`
	ArticleID string `gorm:"size:40"`
	Units     int    `gorm:"not null"`
}

// SupplierReturn: merchandise sent back, always tied to a receipt.
type SupplierReturn struct {
	ID             uint   `gorm:"primaryKey"`
	TenantID       uint   `gorm:"index;not null"`
	Folio          string `gorm:"size:40;uniqueIndex;not null"`
	ReceiptID      uint   `gorm:"index;not null"`
	IdempotencyKey string `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt      time.Time

	Lines []SupplierReturnLine `gorm:"foreignKey:SupplierReturnID;constraint:OnDelete:CASCADE"`
}

type SupplierReturnLine struct {
	ID               uint   `gorm:"primaryKey"`
	SupplierReturnID uint   `gorm:"index;not null"`
	Code             string `gorm:"size:40;not null"`
	Units            int    `gorm:"not null"`
}
