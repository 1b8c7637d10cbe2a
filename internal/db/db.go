package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docserve/internal/config"
	"github.com/hashicorp-forge/docserve/pkg/database"
	"github.com/hashicorp-forge/docserve/pkg/models"
)

// NewDB returns a new migrated database for the revision ledger.
func NewDB(cfg *config.Database, log hclog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database is not configured")
	}

	dbConfig := database.Config{
		Driver:   cfg.Driver,
		Path:     cfg.Path,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	}

	if cfg.Driver == database.DriverSQLite && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := database.Connect(dbConfig, log)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}
