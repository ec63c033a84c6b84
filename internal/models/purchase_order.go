package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderOpen      PurchaseOrderStatus = "open"
	PurchaseOrderPartial   PurchaseOrderStatus = "partial"
	PurchaseOrderReceived  PurchaseOrderStatus = "received"
	PurchaseOrderCancelled PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder: supplier order waiting to be received.
type PurchaseOrder struct {
	ID           uint                `gorm:"primaryKey"`
	TenantID     uint                `gorm:"uniqueIndex:idx_po_tenant_folio;not null"`
	Folio        string              `gorm:"size:40;uniqueIndex:idx_po_tenant_folio;not null"`
	SupplierID   string              `gorm:"size:40;index;not null"`
	SupplierName string              `gorm:"size:150"`
	Warehouse    string              `gorm:"size:30;index;not null"`
	Branch       string              `gorm:"size:30"`
	Status       PurchaseOrderStatus `gorm:"size:20;index;not null;default:open"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Lines []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`
}

type PurchaseOrderLine struct {
	ID              uint   `gorm:"primaryKey"`
	PurchaseOrderID uint   `gorm:"index;not null"`
	ArticleID       string `gorm:"size:40;index;not null"`
	Code            string `gorm:"size:40;index;not null"`
	Barcode         string `gorm:"size:40;index"`
	Description     string `gorm:"size:200"`
	Unit            string `gorm:"size:10"`
	Expected        int    `gorm:"not null"`
	// Received accumulates committed receipts across sessions.
	Received  int             `gorm:"not null;default:0"`
	UnitCost  decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
