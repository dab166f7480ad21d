package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/utils"
)

type UserHandler struct {
	BaseHandler
	userService services.UserService
}

func NewUserHandler(userService services.UserService, logger utils.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: NewBaseHandler(logger),
		userService: userService,
	}
}

// ListUsers lists users with optional filtering
// @Summary List users
// @Description Returns the user collection. Any registered user may read it.
// @Tags users
// @Produce json
// @Param q query string false "Search query (name or email)"
// @Param role query string false "Filter by role (student, teacher, admin)"
// @Success 200 {object} services.UserListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	h.LogRequest(c, "Listing users")

	actor, _ := GetUserFromContext(c)
	filters := repositories.UserFilters{Query: c.Query("q")}
	if r := c.Query("role"); r != "" {
		role := models.ParseRole(r)
		filters.Role = &role
	}
	filters.Limit, filters.Offset = paging(c)

	users, err := h.userService.List(c.Request.Context(), actor, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// GetUser retrieves a user by email
// @Summary Get user by email
// @Tags users
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /users/{email} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	email := c.Param("email")
	h.LogRequest(c, "Getting user", "email", email)

	user, err := h.userService.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// CreateUser registers the caller's user record. The email comes from the token and the role
// is always student; repeating the call returns the existing record.
// @Summary Register user record
// @Tags users
// @Accept json
// @Produce json
// @Success 201 {object} models.User
// @Success 200 {object} models.User "Already registered"
// @Router /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	ident, err := GetIdentityFromContext(c)
	if err != nil {
		h.handleServiceError(c, services.ErrUnauthenticated)
		return
	}

	var req models.CreateUserRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	req.Email = ident.Email
	if req.DisplayName == "" {
		req.DisplayName = ident.DisplayName
	}
	if req.DisplayName == "" {
		req.DisplayName, _, _ = strings.Cut(ident.Email, "@")
	}
	if req.PhotoURL == "" {
		req.PhotoURL = ident.PhotoURL
	}

	h.LogRequest(c, "Registering user", "email", req.Email)

	user, created, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, user)
}

// UpdateProfile edits the caller's own profile
// @Summary Update profile
// @Tags users
// @Accept json
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} models.User
// @Failure 403 {object} ErrorResponse
// @Router /users/{email}/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	email := c.Param("email")
	h.LogRequest(c, "Updating profile", "email", email)

	var req models.UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	actor, _ := GetUserFromContext(c)
	user, err := h.userService.UpdateProfile(c.Request.Context(), actor, email, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateRole promotes or demotes a user
// @Summary Change user role
// @Tags users
// @Accept json
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} models.User
// @Failure 403 {object} ErrorResponse
// @Router /users/{email}/role [put]
func (h *UserHandler) UpdateRole(c *gin.Context) {
	email := c.Param("email")

	var req models.UpdateRoleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.LogRequest(c, "Changing user role", "email", email, "role", req.Role)

	actor, _ := GetUserFromContext(c)
	user, err := h.userService.UpdateRole(c.Request.Context(), actor, email, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser removes a user record
// @Summary Delete user
// @Tags users
// @Param email path string true "User email"
// @Success 200 {object} SuccessResponse
// @Router /users/{email} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	email := c.Param("email")
	h.LogRequest(c, "Deleting user", "email", email)

	actor, _ := GetUserFromContext(c)
	if err := h.userService.Delete(c.Request.Context(), actor, email); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message:   "User deleted successfully",
		Timestamp: time.Now(),
	})
}
