package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createPreferencesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_notification_preferences",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PreferenceModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PreferenceModel{})
		},
	}
}
