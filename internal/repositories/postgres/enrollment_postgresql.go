package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

type enrollmentPostgreSQL struct {
	db *gorm.DB
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &enrollmentPostgreSQL{db: db}
}

func (r *enrollmentPostgreSQL) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UserEmail = models.NormalizeEmail(enrollment.UserEmail)
	enrollment.CourseTeacherEmail = models.NormalizeEmail(enrollment.CourseTeacherEmail)
	if err := r.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		return handleDBError(err, "create enrollment")
	}
	return nil
}

func (r *enrollmentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).First(&enrollment, id).Error; err != nil {
		return nil, handleDBError(err, "get enrollment")
	}
	return &enrollment, nil
}

func (r *enrollmentPostgreSQL) List(ctx context.Context, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Enrollment{})

	if filters.UserEmail != "" {
		query = query.Where("user_email = ?", models.NormalizeEmail(filters.UserEmail))
	}
	if filters.CourseTeacherEmail != "" {
		query = query.Where("course_teacher_email = ?", models.NormalizeEmail(filters.CourseTeacherEmail))
	}
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	if filters.Status != nil {
		query = query.Where("enrollment_status = ?", *filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count enrollments")
	}

	var enrollments []*models.Enrollment
	query = applyPaginationAndSort(query, nil, "created_at", "desc", filters.Limit, filters.Offset)
	if err := query.Find(&enrollments).Error; err != nil {
		return nil, 0, handleDBError(err, "list enrollments")
	}
	return enrollments, total, nil
}

func (r *enrollmentPostgreSQL) FindOpen(ctx context.Context, userEmail string, courseID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_email = ? AND course_id = ? AND enrollment_status <> ?",
			models.NormalizeEmail(userEmail), courseID, models.EnrollmentStatusRejected).
		First(&enrollment).Error
	if err != nil {
		return nil, handleDBError(err, "find open enrollment")
	}
	return &enrollment, nil
}

func (r *enrollmentPostgreSQL) UpdateStatus(ctx context.Context, id uint, from, to models.EnrollmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND enrollment_status = ?", id, from).
		Update("enrollment_status", to)
	return checkAffected(result, "update enrollment status")
}

// MarkPaid flips an accepted unpaid enrollment to paid
func (r *enrollmentPostgreSQL) MarkPaid(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND enrollment_status = ? AND payment_status = ?",
			id, models.EnrollmentStatusActive, models.PaymentStatusUnpaid).
		Update("payment_status", models.PaymentStatusPaid)
	return checkAffected(result, "mark enrollment paid")
}
