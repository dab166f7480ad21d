package repositories

import "context"

// Repository aggregates the marketplace stores: users, courses, enrollments and payments
type Repository interface {
	User() UserRepository
	Course() CourseRepository
	Enrollment() EnrollmentRepository
	Payment() PaymentRepository

	// WithTransaction runs fn against a repository bound to one transaction.
	// Payment confirmation uses it to write the payment, the enrollment and the course counter together.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns the repository lifecycle
type RepositoryManager interface {
	// Initialize checks connections, migrates the schema when asked and builds the repository
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
