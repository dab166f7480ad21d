package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

type userPostgreSQL struct {
	db *gorm.DB
}

func NewUserPostgreSQL(db *gorm.DB) repositories.UserRepository {
	return &userPostgreSQL{db: db}
}

var userSortColumns = map[string]bool{
	"created_at":   true,
	"email":        true,
	"display_name": true,
	"role":         true,
}

func (r *userPostgreSQL) Create(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return handleDBError(err, "create user")
	}
	return nil
}

func (r *userPostgreSQL) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, handleDBError(err, "get user by id")
	}
	return &user, nil
}

func (r *userPostgreSQL) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		return nil, handleDBError(err, "get user by email")
	}
	return &user, nil
}

func (r *userPostgreSQL) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})

	if filters.Query != "" {
		p := likePattern(filters.Query)
		query = query.Where("email ILIKE ? OR display_name ILIKE ?", p, p)
	}
	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}
	if len(filters.ApplicationStatus) > 0 {
		query = query.Where("teacher_application_status IN ?", filters.ApplicationStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count users")
	}

	var users []*models.User
	query = applyPaginationAndSort(query, userSortColumns, "created_at", "asc", filters.Limit, filters.Offset)
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, handleDBError(err, "list users")
	}
	return users, total, nil
}

func (r *userPostgreSQL) UpdateProfile(ctx context.Context, email, displayName, photoURL string) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Updates(map[string]interface{}{
			"display_name": displayName,
			"photo_url":    photoURL,
		})
	if result.Error != nil {
		return handleDBError(result.Error, "update profile")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "update profile")
	}
	return nil
}

func (r *userPostgreSQL) UpdateRole(ctx context.Context, email string, role models.UserRole) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Update("role", role)
	if result.Error != nil {
		return handleDBError(result.Error, "update role")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "update role")
	}
	return nil
}

func (r *userPostgreSQL) SubmitApplication(ctx context.Context, id uint, title, category, experience string, from []models.TeacherApplicationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND teacher_application_status IN ?", id, from).
		Updates(map[string]interface{}{
			"teacher_application_status": models.TeacherApplicationPending,
			"teacher_title":              title,
			"teacher_category":           category,
			"teacher_experience":         experience,
		})
	return checkAffected(result, "submit teacher application")
}

func (r *userPostgreSQL) DecideApplication(ctx context.Context, id uint, status models.TeacherApplicationStatus, role *models.UserRole) error {
	updates := map[string]interface{}{
		"teacher_application_status": status,
	}
	if role != nil {
		updates["role"] = *role
	}

	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND teacher_application_status = ?", id, models.TeacherApplicationPending).
		Updates(updates)
	return checkAffected(result, "decide teacher application")
}

func (r *userPostgreSQL) Delete(ctx context.Context, email string) error {
	result := r.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		Delete(&models.User{})
	if result.Error != nil {
		return handleDBError(result.Error, "delete user")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "delete user")
	}
	return nil
}
