package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"gorm.io/gorm"
)

// profiles is owned by the wider platform; AutoMigrate only adds what is missing.
func createProfilesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_profiles",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ProfileModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return nil
		},
	}
}
