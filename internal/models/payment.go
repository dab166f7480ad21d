package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment is written once after a confirmed charge. Deleting it only hides it from the
// owner's history; the row is kept so a paid enrollment always has its payment.
type Payment struct {
	ID            uint              `json:"id" gorm:"primaryKey"`
	EnrollmentID  uint              `json:"enrollment_id" gorm:"not null;uniqueIndex"`
	CourseID      uint              `json:"course_id" gorm:"not null;index"`
	Amount        float64           `json:"amount" gorm:"type:numeric(10,2);not null"`
	Currency      string            `json:"currency" gorm:"size:10;not null;default:'usd'"`
	TransactionID string            `json:"transaction_id" gorm:"not null;size:255;uniqueIndex"`
	UserEmail     string            `json:"user_email" gorm:"not null;size:255;index"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Payment) TableName() string {
	return "payments"
}
