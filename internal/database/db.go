package database

import (
	"fmt"

	"receiving-backend/internal/config"
	"receiving-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens Postgres and migrates every receiving table.
func Init(cfg *config.Config, log *zap.Logger) error {
	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("conectar a la base de datos: %w", err)
	}

	if err := Migrate(db); err != nil {
		return err
	}
	DB = db

	log.Info("database ready, migration complete")
	return nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.AuditLog{},
		&models.Article{},
		&models.AlternateCode{},
		&models.InnerPackCode{},
		&models.PurchaseOrder{},
		&models.PurchaseOrderLine{},
		&models.ReservationLine{},
		&models.Box{},
		&models.BoxAssignment{},
		&models.Receipt{},
		&models.ReceiptLine{},
		&models.SupplierReturn{},
		&models.SupplierReturnLine{},
	)
	if err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return nil
}
