package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/validator"
)

type enrollmentService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewEnrollmentService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) EnrollmentService {
	return &enrollmentService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// Request asks the course teacher to admit the caller
func (s *enrollmentService) Request(ctx context.Context, actor *models.User, req *models.CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := requireRole(actor, "enrollment", "request", models.RoleStudent); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	course, err := s.repo.Course().GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, mapRepoError(err, ErrCourseNotFound)
	}
	if course.Status != models.CourseStatusActive {
		return nil, ErrCourseNotActive
	}

	_, err = s.repo.Enrollment().FindOpen(ctx, actor.Email, course.ID)
	switch {
	case err == nil:
		return nil, ErrAlreadyEnrolled
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing enrollment: %w", err)
	}

	enrollment := &models.Enrollment{
		UserEmail:          actor.Email,
		UserName:           actor.DisplayName,
		CourseID:           course.ID,
		CourseTitle:        course.Title,
		CourseTeacherEmail: course.TeacherEmail,
		Price:              course.Price,
		PaymentStatus:      models.PaymentStatusUnpaid,
		EnrollmentStatus:   models.EnrollmentStatusPending,
	}

	if err := s.repo.Enrollment().Create(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	s.logger.Info("Enrollment requested", "enrollment_id", enrollment.ID, "course_id", course.ID, "student", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.EnrollmentRequested, fmt.Sprint(enrollment.ID), actor.Email, map[string]interface{}{
		"course_id": course.ID,
	}))
	return enrollment, nil
}

func (s *enrollmentService) GetByID(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	enrollment, err := s.repo.Enrollment().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrEnrollmentNotFound)
	}

	if !isAdmin(actor) && !sameEmail(actor.Email, enrollment.UserEmail) && !sameEmail(actor.Email, enrollment.CourseTeacherEmail) {
		return nil, ErrEnrollmentNotFound
	}
	return enrollment, nil
}

func (s *enrollmentService) List(ctx context.Context, actor *models.User, scope EnrollmentScope, filters repositories.EnrollmentFilters) (*EnrollmentListResponse, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	switch scope {
	case ScopeMine, "":
		filters.UserEmail = actor.Email
	case ScopeTeaching:
		if err := requireRole(actor, "enrollment", "list_teaching", models.RoleTeacher, models.RoleAdmin); err != nil {
			return nil, err
		}
		filters.CourseTeacherEmail = actor.Email
	case ScopeAll:
		if err := requireRole(actor, "enrollment", "list_all", models.RoleAdmin); err != nil {
			return nil, err
		}
	default:
		return nil, ValidationErrors{{Field: "scope", Message: "unknown scope", Value: scope, Rule: "oneof"}}
	}

	filters.Limit, filters.Offset = normalizePage(filters.Limit, filters.Offset)
	enrollments, total, err := s.repo.Enrollment().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return &EnrollmentListResponse{Items: enrollments, Total: total}, nil
}

func (s *enrollmentService) Accept(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error) {
	return s.decide(ctx, actor, id, models.EnrollmentStatusActive, events.EnrollmentAccepted)
}

func (s *enrollmentService) Reject(ctx context.Context, actor *models.User, id uint) (*models.Enrollment, error) {
	return s.decide(ctx, actor, id, models.EnrollmentStatusRejected, events.EnrollmentRejected)
}

func (s *enrollmentService) decide(ctx context.Context, actor *models.User, id uint, to models.EnrollmentStatus, eventType events.EventType) (*models.Enrollment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	enrollment, err := s.repo.Enrollment().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrEnrollmentNotFound)
	}
	if !isAdmin(actor) && !sameEmail(actor.Email, enrollment.CourseTeacherEmail) {
		return nil, NewPermissionError(actor.Email, id, "enrollment", "decide", "not the course teacher")
	}

	if verrs := validator.ValidateEnrollmentTransition(enrollment.EnrollmentStatus, to); len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, verrs)
	}

	if err := s.repo.Enrollment().UpdateStatus(ctx, id, enrollment.EnrollmentStatus, to); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, err)
		}
		return nil, mapRepoError(err, ErrEnrollmentNotFound)
	}

	s.logger.Info("Enrollment decided", "enrollment_id", id, "status", to, "by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, fmt.Sprint(id), actor.Email, map[string]interface{}{
		"user_email": enrollment.UserEmail,
	}))

	enrollment.EnrollmentStatus = to
	return enrollment, nil
}
