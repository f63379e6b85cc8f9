package database

import (
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection with the
// portfolio schema migrated.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Position{},
		&types.Transaction{},
		&types.Order{},
		&types.PortfolioValue{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
