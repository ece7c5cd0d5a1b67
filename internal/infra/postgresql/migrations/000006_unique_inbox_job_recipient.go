package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// A job writes at most one inbox entry per recipient. A batch that would
// repeat one fails as a whole inside its transaction.
func uniqueInboxJobRecipient() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_unique_inbox_job_recipient",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_notifications_job_recipient ON notifications (job_id, recipient_user_id) WHERE job_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP INDEX IF EXISTS uq_notifications_job_recipient`,
			})
		},
	}
}
