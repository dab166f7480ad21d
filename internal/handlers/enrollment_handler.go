package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type EnrollmentHandler struct {
	BaseHandler
	enrollmentService services.EnrollmentService
}

func NewEnrollmentHandler(enrollmentService services.EnrollmentService, logger utils.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		enrollmentService: enrollmentService,
	}
}

// RequestEnrollment asks to join an active course
// @Summary Request enrollment
// @Tags enrollments
// @Accept json
// @Produce json
// @Param enrollment body models.CreateEnrollmentRequest true "Enrollment"
// @Success 201 {object} models.Enrollment
// @Failure 409 {object} ErrorResponse "Already enrolled"
// @Router /enrollments [post]
func (h *EnrollmentHandler) RequestEnrollment(c *gin.Context) {
	var req models.CreateEnrollmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Requesting enrollment", "course_id", req.CourseID)

	actor, _ := GetUserFromContext(c)
	enrollment, err := h.enrollmentService.Request(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, enrollment)
}

// ListEnrollments lists enrollments visible to the caller
// @Summary List enrollments
// @Tags enrollments
// @Produce json
// @Param scope query string false "mine (default), teaching or all"
// @Param status query string false "pending, active or rejected"
// @Param course_id query int false "Course ID"
// @Success 200 {object} services.EnrollmentListResponse
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
	scope := services.EnrollmentScope(c.DefaultQuery("scope", string(services.ScopeMine)))
	h.LogRequest(c, "Listing enrollments", "scope", scope)

	var filters repositories.EnrollmentFilters
	if s := c.Query("status"); s != "" {
		status := models.EnrollmentStatus(s)
		filters.Status = &status
	}
	if v := c.Query("course_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			courseID := uint(id)
			filters.CourseID = &courseID
		}
	}
	filters.Limit, filters.Offset = paging(c)

	actor, _ := GetUserFromContext(c)
	enrollments, err := h.enrollmentService.List(c.Request.Context(), actor, scope, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollments)
}

func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor, _ := GetUserFromContext(c)
	enrollment, err := h.enrollmentService.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

func (h *EnrollmentHandler) AcceptEnrollment(c *gin.Context) {
	h.decide(c, h.enrollmentService.Accept, "Accepting enrollment")
}

func (h *EnrollmentHandler) RejectEnrollment(c *gin.Context) {
	h.decide(c, h.enrollmentService.Reject, "Rejecting enrollment")
}

func (h *EnrollmentHandler) decide(c *gin.Context, fn func(context.Context, *models.User, uint) (*models.Enrollment, error), msg string) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, msg, "enrollment_id", id)

	actor, _ := GetUserFromContext(c)
	enrollment, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}
