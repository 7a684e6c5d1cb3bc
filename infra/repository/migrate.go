package repository

import (
	"fmt"

	"github.com/amirasaad/settlement/infra/repository/model"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates every settlement table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
