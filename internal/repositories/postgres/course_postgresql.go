package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

type coursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &coursePostgreSQL{db: db}
}

var courseSortColumns = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"title":          true,
	"price":          true,
	"students_count": true,
	"status":         true,
}

func (r *coursePostgreSQL) Create(ctx context.Context, course *models.Course) error {
	course.TeacherEmail = models.NormalizeEmail(course.TeacherEmail)
	if err := r.db.WithContext(ctx).Create(course).Error; err != nil {
		return handleDBError(err, "create course")
	}
	return nil
}

func (r *coursePostgreSQL) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, handleDBError(err, "get course")
	}
	return &course, nil
}

func (r *coursePostgreSQL) List(ctx context.Context, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.TeacherEmail != "" {
		query = query.Where("teacher_email = ?", models.NormalizeEmail(filters.TeacherEmail))
	}
	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	if filters.Query != "" {
		p := likePattern(filters.Query)
		query = query.Where("title ILIKE ? OR description ILIKE ?", p, p)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count courses")
	}

	var courses []*models.Course
	query = applyPaginationAndSort(query, courseSortColumns, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&courses).Error; err != nil {
		return nil, 0, handleDBError(err, "list courses")
	}
	return courses, total, nil
}

// Update writes the editable fields of a course that is still pending
func (r *coursePostgreSQL) Update(ctx context.Context, course *models.Course) error {
	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ? AND status = ?", course.ID, models.CourseStatusPending).
		Updates(map[string]interface{}{
			"title":       course.Title,
			"description": course.Description,
			"image_url":   course.ImageURL,
			"price":       course.Price,
			"category":    course.Category,
		})
	return checkAffected(result, "update course")
}

// Delete removes a course that is still pending
func (r *coursePostgreSQL) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.CourseStatusPending).
		Delete(&models.Course{})
	return checkAffected(result, "delete course")
}

func (r *coursePostgreSQL) UpdateStatus(ctx context.Context, id uint, from, to models.CourseStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return checkAffected(result, "update course status")
}

func (r *coursePostgreSQL) IncrementStudents(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", id).
		UpdateColumn("students_count", gorm.Expr("students_count + ?", 1))
	if result.Error != nil {
		return handleDBError(result.Error, "increment students")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "increment students")
	}
	return nil
}
