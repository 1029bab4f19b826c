package domain

import "time"

// The entities below are owned by the course platform. The engine only
// reads them for campaign rule selection and tiered reporting, and
// deletes aged activity/analytics rows during cleanup ticks.

// User is a platform account. Campaign rules select on activity and
// reporting fans admin notifications out to Admin accounts.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Email        string `gorm:"type:varchar(255);not null"`
	FullName     string `gorm:"type:varchar(255);not null"`
	Active       bool   `gorm:"not null;default:true"`
	Admin        bool   `gorm:"not null;default:false"`
	EmailEnabled bool   `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Enrollment links a user to a course.
type Enrollment struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	UserID      string `gorm:"type:uuid;not null"`
	CourseID    string `gorm:"type:uuid;not null"`
	CourseTitle string `gorm:"type:varchar(255);not null"`
	EnrolledAt  time.Time
	CompletedAt *time.Time
}

// CourseProgress tracks a user's advancement through a course.
type CourseProgress struct {
	ID                   string  `gorm:"type:uuid;primaryKey"`
	UserID               string  `gorm:"type:uuid;not null"`
	CourseID             string  `gorm:"type:uuid;not null"`
	CourseTitle          string  `gorm:"type:varchar(255);not null"`
	CompletionPercentage float64 `gorm:"not null;default:0"`
	IsCompleted          bool    `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (CourseProgress) TableName() string { return "course_progress" }

// DeviceToken maps a user to a push-capable device. A user may hold
// several; push dispatch attempts every token.
type DeviceToken struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;not null"`
	Token     string `gorm:"type:varchar(512);not null"`
	CreatedAt time.Time
}

// ActivityLog and AnalyticsEvent rows are append-only platform data;
// the cleanup tick prunes them past their retention windows.
type ActivityLog struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;not null"`
	Action    string `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time
}

type AnalyticsEvent struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time
}
