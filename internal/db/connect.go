package db

import (
	"fmt"

	"github.com/zulandar/stenograph/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from database configuration.
func DSN(c config.DatabaseConfig) string {
	auth := c.User
	if c.Password != "" {
		auth = c.User + ":" + c.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4", auth, c.Host, c.Port, c.Database)
}

// Connect opens a GORM connection for the configured driver.
func Connect(c config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch c.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(c.Path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect sqlite %s: %w", c.Path, err)
		}
		return db, nil
	default:
		db, err := gorm.Open(mysql.Open(DSN(c)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", c.Host, c.Port, c.Database, err)
		}
		return db, nil
	}
}

// ConnectMemory opens an in-memory sqlite database, used by tests.
func ConnectMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect in-memory sqlite: %w", err)
	}
	return db, nil
}
