package models

import "time"

// ===== REQUEST DTOs =====

// CreateUserRequest registers the backend record for an identity. Role is always student.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url,max=500"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url,max=500"`
}

type UpdateRoleRequest struct {
	Role UserRole `json:"role" validate:"required,user_role"`
}

type TeacherApplicationRequest struct {
	Title      string `json:"title" validate:"required,min=2,max=200"`
	Category   string `json:"category" validate:"required,course_category"`
	Experience string `json:"experience" validate:"required,teacher_experience"`
}

type CreateCourseRequest struct {
	Title       string  `json:"title" validate:"required,min=3,max=200"`
	Description string  `json:"description" validate:"required,min=10,max=5000"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url,max=500"`
	Price       float64 `json:"price" validate:"course_price"`
	Category    string  `json:"category" validate:"required,course_category"`
}

type UpdateCourseRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string  `json:"description" validate:"omitempty,min=10,max=5000"`
	ImageURL    *string  `json:"image_url" validate:"omitempty,url,max=500"`
	Price       *float64 `json:"price" validate:"omitempty,course_price"`
	Category    *string  `json:"category" validate:"omitempty,course_category"`
}

type CreateEnrollmentRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

type CreatePaymentIntentRequest struct {
	EnrollmentID uint `json:"enrollment_id" validate:"required"`
}

type CreatePaymentRequest struct {
	EnrollmentID  uint   `json:"enrollment_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required,max=255"`
}

// ===== RESPONSE DTOs =====

type PaymentIntentResponse struct {
	EnrollmentID    uint    `json:"enrollment_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	ClientSecret    string  `json:"client_secret"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

type ListResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

// ===== ERROR RESPONSES =====

type ErrorResponse struct {
	Error            string                    `json:"error,omitempty"`
	Message          string                    `json:"message"`
	Code             string                    `json:"code,omitempty"`
	Details          interface{}               `json:"details,omitempty"`
	Timestamp        time.Time                 `json:"timestamp"`
	Path             string                    `json:"path,omitempty"`
	ValidationErrors []ValidationErrorResponse `json:"validation_errors,omitempty"`
}

type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

type SuccessResponse struct {
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
