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

type courseService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewCourseService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) CourseService {
	return &courseService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *courseService) Create(ctx context.Context, actor *models.User, req *models.CreateCourseRequest) (*models.Course, error) {
	if err := requireRole(actor, "course", "create", models.RoleTeacher); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	course := &models.Course{
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		Price:        req.Price,
		Category:     req.Category,
		TeacherEmail: actor.Email,
		TeacherName:  actor.DisplayName,
		Status:       models.CourseStatusPending,
	}

	if err := s.repo.Course().Create(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	s.logger.Info("Course submitted", "course_id", course.ID, "teacher", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.CourseSubmitted, fmt.Sprint(course.ID), actor.Email, nil))
	return course, nil
}

func (s *courseService) GetByID(ctx context.Context, actor *models.User, id uint) (*models.Course, error) {
	course, err := s.repo.Course().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrCourseNotFound)
	}
	if !canSeeCourse(actor, course) {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

func canSeeCourse(actor *models.User, course *models.Course) bool {
	if course.Status == models.CourseStatusActive {
		return true
	}
	return isAdmin(actor) || (actor != nil && sameEmail(actor.Email, course.TeacherEmail))
}

// List shows active courses to everyone. Admins see every status, teachers also see their own.
func (s *courseService) List(ctx context.Context, actor *models.User, filters repositories.CourseFilters) (*CourseListResponse, error) {
	ownCourses := actor != nil && filters.TeacherEmail != "" && sameEmail(actor.Email, filters.TeacherEmail)
	if !isAdmin(actor) && !ownCourses {
		active := models.CourseStatusActive
		filters.Status = &active
	}

	filters.Limit, filters.Offset = normalizePage(filters.Limit, filters.Offset)
	courses, total, err := s.repo.Course().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return &CourseListResponse{Items: courses, Total: total}, nil
}

func (s *courseService) Update(ctx context.Context, actor *models.User, id uint, req *models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	course, err := s.ownedPendingCourse(ctx, actor, id, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.ImageURL != nil {
		course.ImageURL = *req.ImageURL
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.Category != nil {
		course.Category = *req.Category
	}

	if err := s.repo.Course().Update(ctx, course); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, ErrCourseNotEditable
		}
		return nil, mapRepoError(err, ErrCourseNotFound)
	}

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.CourseUpdated, fmt.Sprint(id), actor.Email, nil))
	return course, nil
}

func (s *courseService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if _, err := s.ownedPendingCourse(ctx, actor, id, "delete"); err != nil {
		return err
	}

	if err := s.repo.Course().Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return ErrCourseNotEditable
		}
		return mapRepoError(err, ErrCourseNotFound)
	}

	s.logger.Info("Course deleted", "course_id", id, "by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.CourseDeleted, fmt.Sprint(id), actor.Email, nil))
	return nil
}

func (s *courseService) ownedPendingCourse(ctx context.Context, actor *models.User, id uint, action string) (*models.Course, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	course, err := s.repo.Course().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrCourseNotFound)
	}
	if !isAdmin(actor) && !sameEmail(actor.Email, course.TeacherEmail) {
		return nil, NewPermissionError(actor.Email, id, "course", action, "not the course owner")
	}
	if course.IsTerminal() {
		return nil, ErrCourseNotEditable
	}
	return course, nil
}

// ===== REVIEW =====

func (s *courseService) Accept(ctx context.Context, actor *models.User, id uint) (*models.Course, error) {
	return s.review(ctx, actor, id, models.CourseStatusActive, events.CourseAccepted)
}

func (s *courseService) Reject(ctx context.Context, actor *models.User, id uint) (*models.Course, error) {
	return s.review(ctx, actor, id, models.CourseStatusRejected, events.CourseRejected)
}

func (s *courseService) review(ctx context.Context, actor *models.User, id uint, to models.CourseStatus, eventType events.EventType) (*models.Course, error) {
	if err := requireRole(actor, "course", "review", models.RoleAdmin); err != nil {
		return nil, err
	}

	course, err := s.repo.Course().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrCourseNotFound)
	}

	if verrs := validator.ValidateCourseTransition(course.Status, to); len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, verrs)
	}

	if err := s.repo.Course().UpdateStatus(ctx, id, course.Status, to); err != nil {
		if errors.Is(err, repositories.ErrStaleUpdate) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatusTransition, err)
		}
		return nil, mapRepoError(err, ErrCourseNotFound)
	}

	s.logger.Info("Course reviewed", "course_id", id, "status", to, "by", actor.Email)
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, fmt.Sprint(id), actor.Email, nil))

	course.Status = to
	return course, nil
}
