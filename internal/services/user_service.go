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

type userService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewUserService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) UserService {
	return &userService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

func (s *userService) Register(ctx context.Context, req *models.CreateUserRequest) (*models.User, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, err
	}

	email := models.NormalizeEmail(req.Email)
	existing, err := s.repo.User().GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}

	user := &models.User{
		Email:                    email,
		DisplayName:              req.DisplayName,
		PhotoURL:                 req.PhotoURL,
		Role:                     models.RoleStudent,
		TeacherApplicationStatus: models.TeacherApplicationNone,
	}

	if err := s.repo.User().Create(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same email
		if errors.Is(err, repositories.ErrDuplicate) {
			existing, getErr := s.repo.User().GetByEmail(ctx, email)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", "email", email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.UserRegistered, email, email, nil))
	return user, true, nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.User().GetByEmail(ctx, email)
	if err != nil {
		return nil, mapRepoError(err, ErrUserNotFound)
	}
	return user, nil
}

// List returns the whole user collection; the portal resolves roles from it
func (s *userService) List(ctx context.Context, actor *models.User, filters repositories.UserFilters) (*UserListResponse, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	filters.Limit, filters.Offset = normalizePage(filters.Limit, filters.Offset)
	users, total, err := s.repo.User().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return &UserListResponse{Items: users, Total: total}, nil
}

func (s *userService) UpdateProfile(ctx context.Context, actor *models.User, email string, req *models.UpdateProfileRequest) (*models.User, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !sameEmail(actor.Email, email) {
		return nil, NewPermissionError(actor.Email, email, "user", "update_profile", "only the owner may edit a profile")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	if err := s.repo.User().UpdateProfile(ctx, email, req.DisplayName, req.PhotoURL); err != nil {
		return nil, mapRepoError(err, ErrUserNotFound)
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.UserProfileUpdated, models.NormalizeEmail(email), actor.Email, nil))
	return s.GetByEmail(ctx, email)
}

func (s *userService) UpdateRole(ctx context.Context, actor *models.User, email string, req *models.UpdateRoleRequest) (*models.User, error) {
	if err := requireRole(actor, "user", "update_role", models.RoleAdmin); err != nil {
		return nil, err
	}
	if sameEmail(actor.Email, email) {
		return nil, ErrCannotModifySelf
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	target, err := s.repo.User().GetByEmail(ctx, email)
	if err != nil {
		return nil, mapRepoError(err, ErrUserNotFound)
	}
	if target.Role == req.Role {
		return target, nil
	}

	if err := s.repo.User().UpdateRole(ctx, email, req.Role); err != nil {
		return nil, mapRepoError(err, ErrUserNotFound)
	}

	eventType := events.UserDemoted
	if roleRank(req.Role) > roleRank(target.Role) {
		eventType = events.UserPromoted
	}

	s.logger.Info("User role changed",
		"email", target.Email,
		"from", target.Role,
		"to", req.Role,
		"by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, target.Email, actor.Email, map[string]interface{}{
		"from": string(target.Role),
		"to":   string(req.Role),
	}))

	target.Role = req.Role
	return target, nil
}

func roleRank(r models.UserRole) int {
	switch r {
	case models.RoleAdmin:
		return 3
	case models.RoleTeacher:
		return 2
	case models.RoleStudent:
		return 1
	default:
		return 0
	}
}

func (s *userService) Delete(ctx context.Context, actor *models.User, email string) error {
	if err := requireRole(actor, "user", "delete", models.RoleAdmin); err != nil {
		return err
	}
	if sameEmail(actor.Email, email) {
		return ErrCannotModifySelf
	}

	if err := s.repo.User().Delete(ctx, email); err != nil {
		return mapRepoError(err, ErrUserNotFound)
	}

	s.logger.Info("User deleted", "email", email, "by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.UserDeleted, models.NormalizeEmail(email), actor.Email, nil))
	return nil
}
