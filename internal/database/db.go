package database

import (
	"fmt"

	"catalog-backend/internal/config"
	"catalog-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates the schema and stores the handle in DB.
func Init(cfg *config.Config) error {
	logMode := logger.Warn
	if !cfg.IsProduction() {
		logMode = logger.Info
	}

	db, err := Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logMode)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}

	DB = db
	zap.L().Info("database connected, migration complete", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

// Open connects to a postgres or sqlite database.
func Open(driver, dsn string, logMode logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.PasswordReset{},
		&models.Supplier{},
		&models.Product{},
		&models.HistoryEntry{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
