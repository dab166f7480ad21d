package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

type paymentPostgreSQL struct {
	db *gorm.DB
}

func NewPaymentPostgreSQL(db *gorm.DB) repositories.PaymentRepository {
	return &paymentPostgreSQL{db: db}
}

func (r *paymentPostgreSQL) Create(ctx context.Context, payment *models.Payment) error {
	payment.UserEmail = models.NormalizeEmail(payment.UserEmail)
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return handleDBError(err, "create payment")
	}
	return nil
}

func (r *paymentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, handleDBError(err, "get payment")
	}
	return &payment, nil
}

// GetByTransactionID also sees deleted rows; a transaction is recorded at most once
func (r *paymentPostgreSQL) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Unscoped().
		Where("transaction_id = ?", transactionID).
		First(&payment).Error
	if err != nil {
		return nil, handleDBError(err, "get payment by transaction")
	}
	return &payment, nil
}

func (r *paymentPostgreSQL) List(ctx context.Context, filters repositories.PaymentFilters) ([]*models.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})

	if filters.UserEmail != "" {
		query = query.Where("user_email = ?", models.NormalizeEmail(filters.UserEmail))
	}
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count payments")
	}

	var payments []*models.Payment
	query = applyPaginationAndSort(query, nil, "created_at", "desc", filters.Limit, filters.Offset)
	if err := query.Find(&payments).Error; err != nil {
		return nil, 0, handleDBError(err, "list payments")
	}
	return payments, total, nil
}

func (r *paymentPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Payment{}, id)
	if result.Error != nil {
		return handleDBError(result.Error, "delete payment")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "delete payment")
	}
	return nil
}
