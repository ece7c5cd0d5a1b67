package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createScheduledNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_scheduled_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledJobModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_status_scheduled ON scheduled_notifications (status, scheduled_at)`,
				`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_due ON scheduled_notifications (scheduled_at) WHERE status = 'pending'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledJobModel{})
		},
	}
}
