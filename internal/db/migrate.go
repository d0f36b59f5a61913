package db

import (
	"fmt"

	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Proxy{},
		&models.ProviderRequest{},
		&models.Contributor{},
		&models.WorkSession{},
		&models.ModelUsage{},
		&models.Project{},
		&models.MemoryRecord{},
		&models.Setting{},
		&models.QueueMessage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedSettings upserts default tenant settings, keeping any existing
// values. Called from `sg db init` for the given tenant.
func SeedSettings(db *gorm.DB, tenantID uint, defaults map[string]string) error {
	for key, value := range defaults {
		s := models.Setting{TenantID: tenantID, Key: key, Value: value}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "key"}},
			DoNothing: true,
		}).Create(&s).Error
		if err != nil {
			return fmt.Errorf("db: seed setting %q: %w", key, err)
		}
	}
	return nil
}
