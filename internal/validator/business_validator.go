package validator

import (
	"fmt"

	"github.com/learnio/learnio/internal/models"
)

var allowedCourseTransitions = map[models.CourseStatus][]models.CourseStatus{
	models.CourseStatusPending:  {models.CourseStatusActive, models.CourseStatusRejected},
	models.CourseStatusActive:   {},
	models.CourseStatusRejected: {},
}

var allowedEnrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusPending:  {models.EnrollmentStatusActive, models.EnrollmentStatusRejected},
	models.EnrollmentStatusActive:   {},
	models.EnrollmentStatusRejected: {},
}

var allowedApplicationTransitions = map[models.TeacherApplicationStatus][]models.TeacherApplicationStatus{
	models.TeacherApplicationNone:     {models.TeacherApplicationPending},
	models.TeacherApplicationPending:  {models.TeacherApplicationAccepted, models.TeacherApplicationRejected},
	models.TeacherApplicationAccepted: {},
	// A rejected applicant may apply again
	models.TeacherApplicationRejected: {models.TeacherApplicationPending},
}

// ValidateCourseTransition checks a course status change
func ValidateCourseTransition(current, next models.CourseStatus) ValidationErrors {
	return checkTransition("status", current, next, allowedCourseTransitions)
}

// ValidateEnrollmentTransition checks an enrollment status change
func ValidateEnrollmentTransition(current, next models.EnrollmentStatus) ValidationErrors {
	return checkTransition("enrollment_status", current, next, allowedEnrollmentTransitions)
}

// ValidateApplicationTransition checks a teacher application status change
func ValidateApplicationTransition(current, next models.TeacherApplicationStatus) ValidationErrors {
	return checkTransition("teacher_application_status", current, next, allowedApplicationTransitions)
}

// ValidatePayable checks that an enrollment may be charged
func ValidatePayable(e *models.Enrollment) ValidationErrors {
	var errors ValidationErrors

	if e.EnrollmentStatus != models.EnrollmentStatusActive {
		errors = append(errors, ValidationError{
			Field:   "enrollment_status",
			Message: "enrollment must be accepted before payment",
			Value:   e.EnrollmentStatus,
			Rule:    "business_logic",
		})
	}
	if e.PaymentStatus == models.PaymentStatusPaid {
		errors = append(errors, ValidationError{
			Field:   "payment_status",
			Message: "enrollment is already paid",
			Value:   e.PaymentStatus,
			Rule:    "business_logic",
		})
	}
	if e.Price <= 0 {
		errors = append(errors, ValidationError{
			Field:   "price",
			Message: "free enrollments do not need payment",
			Value:   e.Price,
			Rule:    "business_logic",
		})
	}

	return errors
}

func checkTransition[S ~string](field string, current, next S, allowed map[S][]S) ValidationErrors {
	for _, s := range allowed[current] {
		if s == next {
			return nil
		}
	}
	return ValidationErrors{{
		Field:   field,
		Message: fmt.Sprintf("cannot transition from %s to %s", current, next),
		Value:   next,
		Rule:    "status_transition",
	}}
}
