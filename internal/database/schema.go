package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kartlab/vehiclesim/internal/model"
)

// Migrate creates the schema and seeds the SimInfo row on first use.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	info := model.SimInfo{
		TeamName:        "vehiclesim",
		TeamDescription: "Headless kart dynamics runs",
	}
	if err := db.Where(model.SimInfo{TeamName: info.TeamName}).FirstOrCreate(&info).Error; err != nil {
		return fmt.Errorf("seeding sim_info: %w", err)
	}
	return nil
}
