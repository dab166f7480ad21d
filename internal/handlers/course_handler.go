package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type CourseHandler struct {
	BaseHandler
	courseService services.CourseService
}

func NewCourseHandler(courseService services.CourseService, logger utils.Logger) *CourseHandler {
	return &CourseHandler{
		BaseHandler:   NewBaseHandler(logger),
		courseService: courseService,
	}
}

// CreateCourse submits a course for review
// @Summary Create course
// @Tags courses
// @Accept json
// @Produce json
// @Param course body models.CreateCourseRequest true "Course"
// @Success 201 {object} models.Course
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var req models.CreateCourseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Creating course", "title", req.Title)

	actor, _ := GetUserFromContext(c)
	course, err := h.courseService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

// ListCourses lists courses. Non-admins only see active courses unless they ask for their own.
// @Summary List courses
// @Tags courses
// @Produce json
// @Param status query string false "pending, active or rejected"
// @Param teacher query string false "Teacher email"
// @Param category query string false "Category"
// @Param q query string false "Search in title"
// @Param sort_by query string false "created_at, title, price, students_count"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} services.CourseListResponse
// @Router /courses [get]
func (h *CourseHandler) ListCourses(c *gin.Context) {
	h.LogRequest(c, "Listing courses")

	filters := repositories.CourseFilters{
		TeacherEmail: c.Query("teacher"),
		Category:     c.Query("category"),
		Query:        c.Query("q"),
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}
	if s := c.Query("status"); s != "" {
		status := models.CourseStatus(s)
		filters.Status = &status
	}
	filters.Limit, filters.Offset = paging(c)

	actor, _ := GetUserFromContext(c)
	courses, err := h.courseService.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, courses)
}

// GetCourse retrieves a course by ID
// @Summary Get course
// @Tags courses
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {object} models.Course
// @Failure 404 {object} ErrorResponse
// @Router /courses/{id} [get]
func (h *CourseHandler) GetCourse(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, "Getting course", "course_id", id)

	actor, _ := GetUserFromContext(c)
	course, err := h.courseService.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// UpdateCourse edits a pending course
// @Summary Update course
// @Tags courses
// @Accept json
// @Produce json
// @Param id path uint true "Course ID"
// @Success 200 {object} models.Course
// @Failure 409 {object} ErrorResponse "Course already reviewed"
// @Router /courses/{id} [put]
func (h *CourseHandler) UpdateCourse(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req models.UpdateCourseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Updating course", "course_id", id)

	actor, _ := GetUserFromContext(c)
	course, err := h.courseService.Update(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// DeleteCourse deletes a pending course
// @Summary Delete course
// @Tags courses
// @Param id path uint true "Course ID"
// @Success 200 {object} SuccessResponse
// @Router /courses/{id} [delete]
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, "Deleting course", "course_id", id)

	actor, _ := GetUserFromContext(c)
	if err := h.courseService.Delete(c.Request.Context(), actor, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message:   "Course deleted successfully",
		Timestamp: time.Now(),
	})
}

func (h *CourseHandler) AcceptCourse(c *gin.Context) {
	h.review(c, h.courseService.Accept, "Accepting course")
}

func (h *CourseHandler) RejectCourse(c *gin.Context) {
	h.review(c, h.courseService.Reject, "Rejecting course")
}

func (h *CourseHandler) review(c *gin.Context, fn func(context.Context, *models.User, uint) (*models.Course, error), msg string) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, msg, "course_id", id)

	actor, _ := GetUserFromContext(c)
	course, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}
