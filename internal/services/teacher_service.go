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

type teacherService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewTeacherService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) TeacherService {
	return &teacherService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// Apply submits a teacher application for the caller
func (s *teacherService) Apply(ctx context.Context, actor *models.User, req *models.TeacherApplicationRequest) (*models.User, error) {
	if err := requireRole(actor, "teacher_application", "apply", models.RoleStudent); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	if verrs := validator.ValidateApplicationTransition(actor.TeacherApplicationStatus, models.TeacherApplicationPending); len(verrs) > 0 {
		return nil, NewBusinessRuleError("teacher_application", "application already submitted", ErrAlreadyApplied, map[string]interface{}{
			"status": actor.TeacherApplicationStatus,
		})
	}

	err := s.repo.User().SubmitApplication(ctx, actor.ID, req.Title, req.Category, req.Experience,
		[]models.TeacherApplicationStatus{models.TeacherApplicationNone, models.TeacherApplicationRejected})
	if err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyApplied, err)
		}
		return nil, mapRepoError(err, ErrUserNotFound)
	}

	s.logger.Info("Teacher application submitted", "email", actor.Email, "category", req.Category)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.TeacherApplied, fmt.Sprint(actor.ID), actor.Email, map[string]interface{}{
		"category": req.Category,
	}))

	return s.repo.User().GetByID(ctx, actor.ID)
}

// ListApplications pages through every user who has applied
func (s *teacherService) ListApplications(ctx context.Context, actor *models.User, limit, offset int) (*UserListResponse, error) {
	if err := requireRole(actor, "teacher_application", "list", models.RoleAdmin); err != nil {
		return nil, err
	}

	filters := repositories.UserFilters{
		ApplicationStatus: []models.TeacherApplicationStatus{
			models.TeacherApplicationPending,
			models.TeacherApplicationAccepted,
			models.TeacherApplicationRejected,
		},
	}
	filters.Limit, filters.Offset = normalizePage(limit, offset)

	users, total, err := s.repo.User().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return &UserListResponse{Items: users, Total: total}, nil
}

func (s *teacherService) Accept(ctx context.Context, actor *models.User, userID uint) (*models.User, error) {
	teacher := models.RoleTeacher
	return s.decide(ctx, actor, userID, models.TeacherApplicationAccepted, &teacher, events.TeacherAccepted)
}

func (s *teacherService) Reject(ctx context.Context, actor *models.User, userID uint) (*models.User, error) {
	return s.decide(ctx, actor, userID, models.TeacherApplicationRejected, nil, events.TeacherRejected)
}

func (s *teacherService) decide(ctx context.Context, actor *models.User, userID uint, status models.TeacherApplicationStatus, role *models.UserRole, eventType events.EventType) (*models.User, error) {
	if err := requireRole(actor, "teacher_application", "decide", models.RoleAdmin); err != nil {
		return nil, err
	}

	applicant, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, ErrUserNotFound)
	}

	if verrs := validator.ValidateApplicationTransition(applicant.TeacherApplicationStatus, status); len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, verrs)
	}

	// an admin never loses the admin role through an application decision
	if role != nil && applicant.Role == models.RoleAdmin {
		role = nil
	}

	if err := s.repo.User().DecideApplication(ctx, userID, status, role); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, err)
		}
		return nil, mapRepoError(err, ErrUserNotFound)
	}

	s.logger.Info("Teacher application decided",
		"email", applicant.Email,
		"status", status,
		"by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, fmt.Sprint(userID), actor.Email, map[string]interface{}{
		"email": applicant.Email,
	}))

	applicant.TeacherApplicationStatus = status
	if role != nil {
		applicant.Role = *role
	}
	return applicant, nil
}
