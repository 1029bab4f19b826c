package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_status ON notifications (recipient_id, status)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_channel_status ON notifications (channel, status)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications (scheduled_at) WHERE status = 'PENDING' AND queued_at IS NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_retry ON notifications (next_retry_at) WHERE status = 'PENDING' AND next_retry_at IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_campaign ON notifications (recipient_id, campaign, created_at) WHERE campaign IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		{
			ID: "000002_create_notification_templates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.TemplateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.TemplateModel{})
			},
		},
		{
			ID: "000003_create_delivery_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_notification_id ON delivery_attempts (notification_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
			},
		},
		{
			ID: "000004_create_platform_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(
					&domain.User{},
					&domain.Enrollment{},
					&domain.CourseProgress{},
					&domain.DeviceToken{},
					&domain.ActivityLog{},
					&domain.AnalyticsEvent{},
				); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_users_last_login ON users (last_login_at) WHERE active = TRUE`,
					`CREATE INDEX IF NOT EXISTS idx_enrollments_user_course ON enrollments (user_id, course_id)`,
					`CREATE INDEX IF NOT EXISTS idx_course_progress_user_course ON course_progress (user_id, course_id)`,
					`CREATE INDEX IF NOT EXISTS idx_device_tokens_user ON device_tokens (user_id)`,
					`CREATE INDEX IF NOT EXISTS idx_activity_logs_created ON activity_logs (created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_analytics_events_created ON analytics_events (created_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&domain.AnalyticsEvent{},
					&domain.ActivityLog{},
					&domain.DeviceToken{},
					&domain.CourseProgress{},
					&domain.Enrollment{},
					&domain.User{},
				)
			},
		},
	})

	return m.Migrate()
}
