package services

import (
	"context"
	"io"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

// EnrollmentScope selects whose enrollments a caller lists
type EnrollmentScope string

const (
	// ScopeMine lists the caller's own enrollments
	ScopeMine EnrollmentScope = "mine"
	// ScopeTeaching lists enrollments in the caller's courses
	ScopeTeaching EnrollmentScope = "teaching"
	// ScopeAll lists every enrollment (admin)
	ScopeAll EnrollmentScope = "all"
)

type UserListResponse = models.ListResponse[*models.User]
type CourseListResponse = models.ListResponse[*models.Course]
type EnrollmentListResponse = models.ListResponse[*models.Enrollment]
type PaymentListResponse = models.ListResponse[*models.Payment]

// ===== SERVICE INTERFACES =====

type UserService interface {
	// Register creates the student record for email, or returns the existing one
	Register(ctx context.Context, req *models.CreateUserRequest) (*models.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, actor *models.User, filters repositories.UserFilters) (*UserListResponse, error)
	UpdateProfile(ctx context.Context, actor *models.User, email string, req *models.UpdateProfileRequest) (*models.User, error)
	UpdateRole(ctx context.Context, actor *models.User, email string, req *models.UpdateRoleRequest) (*models.User, error)
	Delete(ctx context.Context, actor *models.User, email string) error
}

type TeacherService interface {
	Apply(ctx context.Context, actor *models.User, req *models.TeacherApplicationRequest) (*models.User, error)
	ListApplications(ctx context.Context, actor *models.User, limit, offset int) (*UserListResponse, error)
	Accept(ctx context.Context, actor *models.User, userID uint) (*models.User, error)
	Reject(ctx context.Context, actor *models.User, userID uint) (*models.User, error)
}

type CourseService interface {
	Create(ctx context.Context, actor *models.User, req *models.CreateCourseRequest) (*models.Course, error)
	// GetByID returns active courses to anyone; other statuses only to the owner or an admin
	GetByID(ctx context.Context, actor *models.User, id uint) (*models.Course, error)
	List(ctx context.Context, actor *models.User, filters repositories.CourseFilters) (*CourseListResponse, error)
	Update(ctx context.Context, actor *models.User, id uint, req *models.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, actor *models.User, id uint) error
	Accept(ctx context.Context, actor *models.User, id uint) (*models.Course, error)
	Reject(ctx context.Context, actor *models.User, id uint) (*models.Course, error)
}

type EnrollmentService interface {
	Request(ctx context.Context, actor *models.User, req *models.CreateEnrollmentRequest) (*models.Enrollment, error)
	GetByID(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error)
	List(ctx context.Context, actor *models.User, scope EnrollmentScope, filters repositories.EnrollmentFilters) (*EnrollmentListResponse, error)
	Accept(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error)
	Reject(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, actor *models.User, req *models.CreatePaymentIntentRequest) (*models.PaymentIntentResponse, error)
	// Confirm verifies the charge with the provider and records it against the enrollment
	Confirm(ctx context.Context, actor *models.User, req *models.CreatePaymentRequest) (*models.Payment, error)
	List(ctx context.Context, actor *models.User, filters repositories.PaymentFilters) (*PaymentListResponse, error)
	Delete(ctx context.Context, actor *models.User, id uint) error
}

type ExportService interface {
	// WriteReport writes an xlsx workbook with one sheet per collection
	WriteReport(ctx context.Context, actor *models.User, w io.Writer) error
}

type ServiceManager interface {
	Initialize(ctx context.Context) error

	User() UserService
	Teacher() TeacherService
	Course() CourseService
	Enrollment() EnrollmentService
	Payment() PaymentService
	Export() ExportService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
