package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createDeviceTokensTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_device_tokens",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeviceTargetModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_device_tokens_user_id ON device_tokens (user_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeviceTargetModel{})
		},
	}
}
