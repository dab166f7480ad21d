package models

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

type Enrollment struct {
	ID                 uint             `json:"id" gorm:"primaryKey"`
	UserEmail          string           `json:"user_email" gorm:"not null;size:255;index"`
	UserName           string           `json:"user_name" gorm:"size:100"`
	CourseID           uint             `json:"course_id" gorm:"not null;index"`
	CourseTitle        string           `json:"course_title" gorm:"size:200"`
	CourseTeacherEmail string           `json:"course_teacher_email" gorm:"not null;size:255;index"`
	Price              float64          `json:"price" gorm:"type:numeric(10,2);not null"`
	PaymentStatus      PaymentStatus    `json:"payment_status" gorm:"type:varchar(20);not null;default:'unpaid'"`
	EnrollmentStatus   EnrollmentStatus `json:"enrollment_status" gorm:"type:varchar(20);not null;default:'pending';index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// Payable reports whether the enrollment can be charged
func (e *Enrollment) Payable() bool {
	return e.EnrollmentStatus == EnrollmentStatusActive && e.PaymentStatus == PaymentStatusUnpaid
}
