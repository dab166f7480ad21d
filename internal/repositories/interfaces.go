package repositories

import (
	"context"

	"github.com/learnio/learnio/internal/models"
)

// CourseFilters for course queries
type CourseFilters struct {
	Status       *models.CourseStatus
	TeacherEmail string
	Category     string
	Query        string
	SortBy       string
	SortOrder    string
	Limit        int
	Offset       int
}

type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	List(ctx context.Context, filters CourseFilters) ([]*models.Course, int64, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id uint) error

	// UpdateStatus changes status only if the current status equals from
	UpdateStatus(ctx context.Context, id uint, from, to models.CourseStatus) error
	IncrementStudents(ctx context.Context, id uint) error
}

// EnrollmentFilters for enrollment queries
type EnrollmentFilters struct {
	UserEmail          string
	CourseTeacherEmail string
	CourseID           *uint
	Status             *models.EnrollmentStatus
	Limit              int
	Offset             int
}

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, id uint) (*models.Enrollment, error)
	List(ctx context.Context, filters EnrollmentFilters) ([]*models.Enrollment, int64, error)

	// FindOpen returns the caller's non-rejected enrollment for a course, if any
	FindOpen(ctx context.Context, userEmail string, courseID uint) (*models.Enrollment, error)

	UpdateStatus(ctx context.Context, id uint, from, to models.EnrollmentStatus) error
	MarkPaid(ctx context.Context, id uint) error
}

// PaymentFilters for payment queries
type PaymentFilters struct {
	UserEmail string
	CourseID  *uint
	Limit     int
	Offset    int
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	List(ctx context.Context, filters PaymentFilters) ([]*models.Payment, int64, error)
	Delete(ctx context.Context, id uint) error
}
