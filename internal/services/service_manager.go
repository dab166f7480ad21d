package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/payment"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// Currency charged for course payments
	Currency string
}

// ServiceDeps are the collaborators every service is built from
type ServiceDeps struct {
	Repositories repositories.RepositoryManager
	Publisher    events.EventPublisher
	Payments     payment.Provider
	Logger       *slog.Logger
	Validator    *validator.Validator
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	deps   ServiceDeps
	config ServiceManagerConfig

	userService       UserService
	teacherService    TeacherService
	courseService     CourseService
	enrollmentService EnrollmentService
	paymentService    PaymentService
	exportService     ExportService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(deps ServiceDeps, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		deps:   deps,
		config: config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.deps.Logger.Info("Initializing service manager")

	repo := sm.deps.Repositories.GetRepository()
	if repo == nil {
		return fmt.Errorf("failed to initialize services: repository not initialized")
	}
	if sm.deps.Payments == nil {
		return fmt.Errorf("failed to initialize services: payment provider is required")
	}

	logger, v, pub := sm.deps.Logger, sm.deps.Validator, sm.deps.Publisher

	sm.userService = NewUserService(repo, pub, logger.With("service", "user"), v)
	sm.teacherService = NewTeacherService(repo, pub, logger.With("service", "teacher"), v)
	sm.courseService = NewCourseService(repo, pub, logger.With("service", "course"), v)
	sm.enrollmentService = NewEnrollmentService(repo, pub, logger.With("service", "enrollment"), v)
	sm.paymentService = NewPaymentService(repo, sm.deps.Payments, sm.config.Currency, pub, logger.With("service", "payment"), v)
	sm.exportService = NewExportService(repo, logger.With("service", "export"))

	sm.initialized = true
	sm.deps.Logger.Info("Service manager initialized successfully")
	return nil
}

func (sm *serviceManager) ready() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Service getters
func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.userService
}

func (sm *serviceManager) Teacher() TeacherService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.teacherService
}

func (sm *serviceManager) Course() CourseService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.courseService
}

func (sm *serviceManager) Enrollment() EnrollmentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.enrollmentService
}

func (sm *serviceManager) Payment() PaymentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.paymentService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.ready()
	return sm.exportService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repositories.HealthCheck(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.deps.Logger.Info("Shutting down service manager")

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.deps.Logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.deps.Repositories.Shutdown(ctx); err != nil {
		sm.deps.Logger.Error("Failed to shutdown repository manager", "error", err)
	}

	sm.shutdown = true
	sm.deps.Logger.Info("Service manager shut down completed")
	return nil
}
