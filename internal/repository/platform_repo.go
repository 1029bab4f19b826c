package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/coursehub/notification-engine/internal/domain"
)

// CourseStat is an aggregate row for the tiered reports.
type CourseStat struct {
	CourseID    string `gorm:"column:course_id"`
	CourseTitle string `gorm:"column:course_title"`
	Enrollments int64  `gorm:"column:enrollments"`
}

// PlatformRepository reads platform-owned user/enrollment/progress data
// for campaign rule selection and tiered reporting, and prunes aged
// activity/analytics rows. All selection queries are read-only.
type PlatformRepository interface {
	UserByID(ctx context.Context, id string) (*domain.User, error)
	Admins(ctx context.Context) ([]domain.User, error)
	DeviceTokens(ctx context.Context, userID string) ([]string, error)

	InactiveUsers(ctx context.Context, lastLoginBefore time.Time) ([]domain.User, error)
	IncompleteEnrollments(ctx context.Context, enrolledBefore time.Time) ([]domain.Enrollment, error)
	StalledProgress(ctx context.Context, unmodifiedSince time.Time) ([]domain.CourseProgress, error)
	RecentlyActiveProgress(ctx context.Context, updatedSince time.Time) ([]domain.CourseProgress, error)

	CountUsersRegistered(ctx context.Context, from, to time.Time) (int64, error)
	CountEnrollments(ctx context.Context, from, to time.Time) (int64, error)
	CountCompletions(ctx context.Context, from, to time.Time) (int64, error)
	CountActiveUsers(ctx context.Context, from, to time.Time) (int64, error)
	TopCourses(ctx context.Context, from, to time.Time, limit int) ([]CourseStat, error)

	DeleteActivityOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAnalyticsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormPlatformRepo struct {
	db *gorm.DB
}

func NewGormPlatformRepo(db *gorm.DB) *GormPlatformRepo {
	return &GormPlatformRepo{db: db}
}

func (r *GormPlatformRepo) UserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormPlatformRepo) Admins(ctx context.Context) ([]domain.User, error) {
	var admins []domain.User
	err := r.db.WithContext(ctx).
		Where("admin = TRUE AND active = TRUE").
		Find(&admins).Error
	return admins, err
}

func (r *GormPlatformRepo) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).
		Model(&domain.DeviceToken{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error
	return tokens, err
}

// InactiveUsers selects active, email-enabled accounts whose last login
// is older than the cutoff or missing entirely.
func (r *GormPlatformRepo) InactiveUsers(ctx context.Context, lastLoginBefore time.Time) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("active = TRUE AND email_enabled = TRUE AND (last_login_at IS NULL OR last_login_at < ?)", lastLoginBefore).
		Find(&users).Error
	return users, err
}

// IncompleteEnrollments selects enrollments old enough to nudge where the
// user has not completed any progress record for the course yet.
func (r *GormPlatformRepo) IncompleteEnrollments(ctx context.Context, enrolledBefore time.Time) ([]domain.Enrollment, error) {
	var enrollments []domain.Enrollment
	err := r.db.WithContext(ctx).
		Where(`enrolled_at <= ? AND completed_at IS NULL AND NOT EXISTS (
			SELECT 1 FROM course_progress p
			WHERE p.user_id = enrollments.user_id
			  AND p.course_id = enrollments.course_id
			  AND p.is_completed = TRUE
		)`, enrolledBefore).
		Find(&enrollments).Error
	return enrollments, err
}

func (r *GormPlatformRepo) StalledProgress(ctx context.Context, unmodifiedSince time.Time) ([]domain.CourseProgress, error) {
	var progress []domain.CourseProgress
	err := r.db.WithContext(ctx).
		Where("completion_percentage > 0 AND completion_percentage < 100 AND is_completed = FALSE AND updated_at <= ?", unmodifiedSince).
		Find(&progress).Error
	return progress, err
}

func (r *GormPlatformRepo) RecentlyActiveProgress(ctx context.Context, updatedSince time.Time) ([]domain.CourseProgress, error) {
	var progress []domain.CourseProgress
	err := r.db.WithContext(ctx).
		Where("updated_at >= ?", updatedSince).
		Find(&progress).Error
	return progress, err
}

func (r *GormPlatformRepo) CountUsersRegistered(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *GormPlatformRepo) CountEnrollments(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Enrollment{}).
		Where("enrolled_at >= ? AND enrolled_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *GormPlatformRepo) CountCompletions(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Enrollment{}).
		Where("completed_at IS NOT NULL AND completed_at >= ? AND completed_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *GormPlatformRepo) CountActiveUsers(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("last_login_at >= ? AND last_login_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *GormPlatformRepo) TopCourses(ctx context.Context, from, to time.Time, limit int) ([]CourseStat, error) {
	if limit < 1 {
		limit = 5
	}

	var stats []CourseStat
	err := r.db.WithContext(ctx).
		Model(&domain.Enrollment{}).
		Select("course_id, MIN(course_title) as course_title, COUNT(*) as enrollments").
		Where("enrolled_at >= ? AND enrolled_at < ?", from, to).
		Group("course_id").
		Order("enrollments DESC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}

func (r *GormPlatformRepo) DeleteActivityOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.ActivityLog{})
	return result.RowsAffected, result.Error
}

func (r *GormPlatformRepo) DeleteAnalyticsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.AnalyticsEvent{})
	return result.RowsAffected, result.Error
}
