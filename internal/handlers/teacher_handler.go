package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type TeacherHandler struct {
	BaseHandler
	teacherService services.TeacherService
}

func NewTeacherHandler(teacherService services.TeacherService, logger utils.Logger) *TeacherHandler {
	return &TeacherHandler{
		BaseHandler:    NewBaseHandler(logger),
		teacherService: teacherService,
	}
}

// ListApplications returns every user who has applied to teach
// @Summary List teacher applications
// @Tags teachers
// @Produce json
// @Success 200 {object} services.UserListResponse
// @Router /teachers [get]
func (h *TeacherHandler) ListApplications(c *gin.Context) {
	h.LogRequest(c, "Listing teacher applications")

	actor, _ := GetUserFromContext(c)
	limit, offset := paging(c)
	users, err := h.teacherService.ListApplications(c.Request.Context(), actor, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// Apply submits the caller's teacher application
// @Summary Apply to teach
// @Tags teachers
// @Accept json
// @Produce json
// @Param application body models.TeacherApplicationRequest true "Application"
// @Success 201 {object} models.User
// @Failure 409 {object} ErrorResponse "Already applied"
// @Router /teachers [post]
func (h *TeacherHandler) Apply(c *gin.Context) {
	var req models.TeacherApplicationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Submitting teacher application", "category", req.Category)

	actor, _ := GetUserFromContext(c)
	user, err := h.teacherService.Apply(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *TeacherHandler) Accept(c *gin.Context) {
	h.decide(c, h.teacherService.Accept, "Accepting teacher application")
}

func (h *TeacherHandler) Reject(c *gin.Context) {
	h.decide(c, h.teacherService.Reject, "Rejecting teacher application")
}

func (h *TeacherHandler) decide(c *gin.Context, fn func(context.Context, *models.User, uint) (*models.User, error), msg string) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	h.LogRequest(c, msg, "user_id", id)

	actor, _ := GetUserFromContext(c)
	user, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
