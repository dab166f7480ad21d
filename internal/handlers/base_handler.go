package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type ErrorResponse = models.ErrorResponse
type SuccessResponse = models.SuccessResponse

// BaseHandler carries what every backend handler shares
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	l := utils.FromContext(c, h.logger)
	if email := c.GetString("user_email"); email != "" {
		args = append(args, "user_email", email)
	}
	l.Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err, "path", c.Request.URL.Path)
	utils.FromContext(c, h.logger).Error(msg, args...)
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		details := "must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message:   "Invalid " + param,
			Details:   details,
			Timestamp: time.Now(),
		})
		return 0
	}
	return uint(id)
}

// bindJSON decodes the body, answering 400 itself on failure
func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message:   "Invalid request payload",
			Details:   err.Error(),
			Timestamp: time.Now(),
		})
		return false
	}
	return true
}

// paging reads limit/offset query parameters; the services clamp them
func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	respond := func(status int, message string, details interface{}) {
		c.JSON(status, ErrorResponse{
			Message:   message,
			Details:   details,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		resp := ErrorResponse{
			Message:   "Validation failed",
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		}
		for _, ve := range validationErrors {
			resp.ValidationErrors = append(resp.ValidationErrors, models.ValidationErrorResponse{
				Field:   ve.Field,
				Message: ve.Message,
				Rule:    ve.Rule,
			})
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, services.ErrAlreadyPaid) || errors.Is(err, services.ErrAlreadyApplied) {
			status = http.StatusConflict
		}
		respond(status, businessRuleError.Message, map[string]interface{}{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		respond(http.StatusForbidden, "Access denied", map[string]interface{}{
			"resource": permissionError.Resource,
			"action":   permissionError.Action,
			"reason":   permissionError.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrUserNotFound):
		respond(http.StatusNotFound, "User not found", nil)
	case errors.Is(err, services.ErrCourseNotFound):
		respond(http.StatusNotFound, "Course not found", nil)
	case errors.Is(err, services.ErrEnrollmentNotFound):
		respond(http.StatusNotFound, "Enrollment not found", nil)
	case errors.Is(err, services.ErrPaymentNotFound):
		respond(http.StatusNotFound, "Payment not found", nil)
	case errors.Is(err, services.ErrUnauthenticated):
		respond(http.StatusUnauthorized, "Authentication required", nil)
	case errors.Is(err, services.ErrCannotModifySelf), errors.Is(err, services.ErrForbidden):
		respond(http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrCourseNotEditable),
		errors.Is(err, services.ErrAlreadyEnrolled),
		errors.Is(err, services.ErrAlreadyApplied),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrConflict):
		respond(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, services.ErrCourseNotActive),
		errors.Is(err, services.ErrNotPayable):
		respond(http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, services.ErrPaymentNotConfirmed),
		errors.Is(err, services.ErrPaymentMismatch):
		respond(http.StatusPaymentRequired, err.Error(), nil)
	default:
		h.LogError(c, err, "Unexpected service error")
		respond(http.StatusInternalServerError, "Internal server error", nil)
	}
}
