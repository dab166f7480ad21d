package repositories

import (
	"context"
	"errors"

	"github.com/learnio/learnio/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleUpdate is returned by conditional updates whose precondition no longer holds
	ErrStaleUpdate = errors.New("record changed concurrently")
	ErrDuplicate   = errors.New("record already exists")
)

// UserFilters defines filters for user queries
type UserFilters struct {
	Query             string // Search in name or email
	Role              *models.UserRole
	ApplicationStatus []models.TeacherApplicationStatus
	Limit             int
	Offset            int
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filters UserFilters) ([]*models.User, int64, error)

	UpdateProfile(ctx context.Context, email, displayName, photoURL string) error
	UpdateRole(ctx context.Context, email string, role models.UserRole) error

	// SubmitApplication moves the applicant to pending from any status in from
	SubmitApplication(ctx context.Context, id uint, title, category, experience string, from []models.TeacherApplicationStatus) error
	// DecideApplication moves a pending application to status, optionally setting the role
	DecideApplication(ctx context.Context, id uint, status models.TeacherApplicationStatus, role *models.UserRole) error

	Delete(ctx context.Context, email string) error
}
