package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/learnio/learnio/internal/models"
)

// TeacherExperienceLevels are accepted values for a teacher application
var TeacherExperienceLevels = []string{"beginner", "mid-level", "experienced"}

const maxCoursePrice = 10000

// ValidationError represents a single failed rule
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Validator wraps go-playground/validator with the Learnio rules registered
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report json field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Struct validates s and returns ValidationErrors (or nil)
func (v *Validator) Struct(s interface{}) error {
	if errs := ToValidationErrors(v.validate.Struct(s)); len(errs) > 0 {
		return errs
	}
	return nil
}

// Var validates a single value against a tag
func (v *Validator) Var(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}

// ToValidationErrors converts validator errors to ValidationErrors
func ToValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "", Message: err.Error(), Rule: "invalid"}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("course_category", func(fl validator.FieldLevel) bool {
		return slices.Contains(models.CourseCategories, fl.Field().String())
	})

	// Free courses are allowed
	v.validate.RegisterValidation("course_price", func(fl validator.FieldLevel) bool {
		price := fl.Field().Float()
		return !math.IsNaN(price) && !math.IsInf(price, 0) && price >= 0 && price <= maxCoursePrice
	})

	v.validate.RegisterValidation("teacher_experience", func(fl validator.FieldLevel) bool {
		return slices.Contains(TeacherExperienceLevels, fl.Field().String())
	})

	v.validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).Valid()
	})

	// At least 6 characters, one upper-case letter and one special character
	v.validate.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		if len(password) < 6 {
			return false
		}
		var hasUpper, hasSpecial bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsPunct(r) || unicode.IsSymbol(r):
				hasSpecial = true
			}
		}
		return hasUpper && hasSpecial
	})
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "course_category":
		return "must be a known course category"
	case "course_price":
		return fmt.Sprintf("must be between 0 and %d", maxCoursePrice)
	case "teacher_experience":
		return "must be beginner, mid-level or experienced"
	case "user_role":
		return "must be admin, teacher or student"
	case "strong_password":
		return "must be at least 6 characters with an upper-case letter and a special character"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", fe.Tag())
	}
}
