package services

import (
	"errors"
	"fmt"

	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/validator"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrPaymentNotFound    = errors.New("payment not found")

	ErrUnauthenticated  = errors.New("authentication required")
	ErrForbidden        = errors.New("forbidden")
	ErrCannotModifySelf = errors.New("admins cannot change or delete their own account")

	ErrConflict                = errors.New("resource changed concurrently")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrCourseNotEditable       = errors.New("course can only be changed while pending")
	ErrCourseNotActive         = errors.New("course is not open for enrollment")
	ErrAlreadyEnrolled         = errors.New("an enrollment for this course already exists")
	ErrAlreadyApplied          = errors.New("teacher application already submitted")

	ErrNotPayable          = errors.New("enrollment cannot be paid")
	ErrAlreadyPaid         = errors.New("payment already recorded")
	ErrPaymentNotConfirmed = errors.New("payment has not succeeded")
	ErrPaymentMismatch     = errors.New("payment does not match enrollment")
)

type ValidationErrors = validator.ValidationErrors

// BusinessRuleError reports a request that is well formed but breaks a domain rule
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
	Err     error                  `json:"-"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error { return e.Err }

func NewBusinessRuleError(rule, message string, err error, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Err: err, Context: context}
}

// PermissionError reports an authenticated caller acting outside their rights
type PermissionError struct {
	UserEmail  string `json:"user_email"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s may not %s %s %s: %s", e.UserEmail, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

func NewPermissionError(userEmail string, resourceID interface{}, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserEmail:  userEmail,
		ResourceID: fmt.Sprint(resourceID),
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// mapRepoError replaces repository sentinels with the service error for the resource
func mapRepoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return notFound
	case errors.Is(err, repositories.ErrStaleUpdate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repositories.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
