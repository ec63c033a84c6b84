package models

import "time"

type Article struct {
	ID          uint   `gorm:"primaryKey"`
	TenantID    uint   `gorm:"uniqueIndex:idx_article_tenant_code;not null"`
	ArticleID   string `gorm:"size:40;not null;index"`
	Code        string `gorm:"size:40;uniqueIndex:idx_article_tenant_code;not null"`
	Barcode     string `gorm:"size:40;index"`
	Description string `gorm:"size:200"`
	Unit        string `gorm:"size:10"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InnerPackCode: barcode printed on an inner pack, worth Multiplier units.
type InnerPackCode struct {
	ID         uint   `gorm:"primaryKey"`
	TenantID   uint   `gorm:"uniqueIndex:idx_pack_tenant_code;not null"`
	Code       string `gorm:"size:40;uniqueIndex:idx_pack_tenant_code;not null"`
	ArticleID  string `gorm:"size:40;index;not null"`
	Multiplier int    `gorm:"not null"`
	CreatedAt  time.Time
}

// AlternateCode: supplier code registered as an alias of an article.
type AlternateCode struct {
	ID         uint   `gorm:"primaryKey"`
	TenantID   uint   `gorm:"uniqueIndex:idx_alt_tenant_code;not null"`
	Code       string `gorm:"size:60;uniqueIndex:idx_alt_tenant_code;not null"`
	ArticleID  string `gorm:"size:40;index;not null"`
	SupplierID string `gorm:"size:40;index"`
	CreatedAt  time.Time
}
