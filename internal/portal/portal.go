package portal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/learnio/learnio/internal/access"
	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/config"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/utils"
	"github.com/learnio/learnio/internal/validator"
)

// Backend is the REST backend as the portal uses it
type Backend interface {
	ListUsers(ctx context.Context, token string) (*backend.Users, error)
	GetUser(ctx context.Context, token, email string) (*models.User, error)
	RegisterUser(ctx context.Context, token, displayName, photoURL string) (*models.User, error)
	UpdateProfile(ctx context.Context, token, email string, req *models.UpdateProfileRequest) (*models.User, error)
	UpdateRole(ctx context.Context, token, email string, role models.UserRole) (*models.User, error)
	DeleteUser(ctx context.Context, token, email string) error

	ListTeacherApplications(ctx context.Context, token string) (*backend.Users, error)
	ApplyTeacher(ctx context.Context, token string, req *models.TeacherApplicationRequest) (*models.User, error)
	AcceptTeacher(ctx context.Context, token string, id uint) error
	RejectTeacher(ctx context.Context, token string, id uint) error

	ListCourses(ctx context.Context, token string, q backend.CourseQuery) (*backend.Courses, error)
	GetCourse(ctx context.Context, token string, id uint) (*models.Course, error)
	CreateCourse(ctx context.Context, token string, req *models.CreateCourseRequest) (*models.Course, error)
	AcceptCourse(ctx context.Context, token string, id uint) error
	RejectCourse(ctx context.Context, token string, id uint) error

	ListEnrollments(ctx context.Context, token, scope string) (*backend.Enrollments, error)
	RequestEnrollment(ctx context.Context, token string, courseID uint) (*models.Enrollment, error)
	AcceptEnrollment(ctx context.Context, token string, id uint) error
	RejectEnrollment(ctx context.Context, token string, id uint) error

	CreatePaymentIntent(ctx context.Context, token string, enrollmentID uint) (*models.PaymentIntentResponse, error)
	ConfirmPayment(ctx context.Context, token string, req *models.CreatePaymentRequest) (*models.Payment, error)
	ListPayments(ctx context.Context, token string) (*backend.Payments, error)
	DeletePayment(ctx context.Context, token string, id uint) error
	ExportReport(ctx context.Context, token string, w io.Writer) (string, error)
}

// Deps wires the portal to its collaborators
type Deps struct {
	Backend   Backend
	Query     *query.Client
	Sessions  *session.Store
	Identity  identity.Provider
	Validator *validator.Validator
	Session   config.SessionConfig
	PublicURL string
	Fallback  access.Fallback
	Logger    utils.Logger
}

// Portal is the browser-facing side: sessions, guard, navigation and review screens
type Portal struct {
	backend   Backend
	query     *query.Client
	sessions  *session.Store
	identity  identity.Provider
	validator *validator.Validator
	resolver  *access.Resolver
	menus     *access.MenuBuilder
	guard     *access.Guard
	cookie    config.SessionConfig
	publicURL string
	logger    utils.Logger
}

func New(deps Deps) *Portal {
	return &Portal{
		backend:   deps.Backend,
		query:     deps.Query,
		sessions:  deps.Sessions,
		identity:  deps.Identity,
		validator: deps.Validator,
		resolver:  access.NewResolver(),
		menus:     access.NewMenuBuilder(deps.Fallback),
		guard:     access.NewGuard(deps.Sessions, deps.Logger),
		cookie:    deps.Session,
		publicURL: deps.PublicURL,
		logger:    deps.Logger,
	}
}

var (
	adminOnly   = []models.UserRole{models.RoleAdmin}
	teacherOnly = []models.UserRole{models.RoleTeacher}
	studentOnly = []models.UserRole{models.RoleStudent}
)

// SetupRoutes registers the portal routes
func (p *Portal) SetupRoutes(router *gin.Engine) {
	web := router.Group("")
	web.Use(session.Middleware(p.sessions, p.cookie, p.logger))

	web.GET(access.LoginPath, p.Login)
	web.GET("/auth/callback", p.Callback)
	web.POST("/auth/register", p.Register)
	web.POST("/auth/logout", p.Logout)
	web.PUT("/auth/profile", p.guard.Require(), p.UpdateProfile)

	app := web.Group("/app", p.guard.Require())
	{
		app.GET("/menu", p.Menu)
		app.GET("/dashboard", p.Dashboard)
		app.GET("/profile", p.Profile)
		app.GET("/courses", p.Courses)
		app.GET("/courses/:id", p.Course)

		// admin
		app.GET("/manage-courses", p.ManageCourses)
		app.POST("/manage-courses/:id/accept", p.AcceptCourse)
		app.POST("/manage-courses/:id/reject", p.RejectCourse)
		app.GET("/teacher-requests", p.TeacherRequests)
		app.POST("/teacher-requests/:id/accept", p.AcceptTeacher)
		app.POST("/teacher-requests/:id/reject", p.RejectTeacher)
		app.GET("/users", p.Users)
		app.POST("/users/:email/promote", p.PromoteUser)
		app.POST("/users/:email/demote", p.DemoteUser)
		app.POST("/users/:email/delete", p.DeleteUser)
		app.GET("/payments", p.AllPayments)
		app.GET("/reports/export", p.ExportReport)

		// teacher
		app.POST("/add-course", p.AddCourse)
		app.GET("/my-courses", p.MyCourses)
		app.GET("/enrollment-requests", p.EnrollmentRequests)
		app.POST("/enrollment-requests/:id/accept", p.AcceptEnrollment)
		app.POST("/enrollment-requests/:id/reject", p.RejectEnrollment)

		// student
		app.POST("/enroll/:courseId", p.Enroll)
		app.GET("/my-enrollments", p.MyEnrollments)
		app.GET("/checkout/:enrollmentId", p.Checkout)
		app.POST("/checkout/:enrollmentId/confirm", p.ConfirmCheckout)
		app.GET("/payment-history", p.PaymentHistory)
		app.POST("/payment-history/:id/delete", p.DeletePayment)
		app.POST("/teach", p.ApplyTeacher)
	}
}

// WatchSessions drops memoised roles when a session signs out on any instance
func (p *Portal) WatchSessions(ctx context.Context) error {
	changes, err := p.sessions.Subscribe(ctx)
	if err != nil {
		return err
	}
	for change := range changes {
		if change.Status == session.StatusAnonymous && change.Email != "" {
			p.resolver.Forget(change.Email)
		}
	}
	return nil
}

// ===== rendering =====

// PageError is the full-screen error state
type PageError struct {
	Message string `json:"message"`
	Retry   string `json:"retry,omitempty"`
}

// Page is the envelope of every portal response
type Page struct {
	Status        session.Status         `json:"status"`
	Profile       *session.Profile       `json:"profile,omitempty"`
	Role          models.UserRole        `json:"role,omitempty"`
	Data          interface{}            `json:"data,omitempty"`
	Error         *PageError             `json:"error,omitempty"`
	Notifications []session.Notification `json:"notifications"`
}

func (p *Portal) render(c *gin.Context, status int, page Page) {
	s := session.FromContext(c)
	page.Notifications = []session.Notification{}
	if s != nil {
		page.Status = s.Status
		if s.Status == session.StatusAuthenticated {
			profile := s.Profile
			page.Profile = &profile
		}
		notes, err := p.sessions.DrainNotifications(c.Request.Context(), s.ID)
		if err != nil {
			utils.FromContext(c, p.logger).Warn("Failed to drain notifications", "session_id", s.ID, "error", err)
		} else {
			page.Notifications = notes
		}
	}
	c.JSON(status, page)
}

func (p *Portal) notify(c *gin.Context, level session.NotificationLevel, message string) {
	s := session.FromContext(c)
	if s == nil {
		return
	}
	if err := p.sessions.Notify(c.Request.Context(), s.ID, level, message); err != nil {
		utils.FromContext(c, p.logger).Warn("Failed to queue notification", "session_id", s.ID, "error", err)
	}
}

// gone reports whether the browser has left; nothing should be written for it
func gone(c *gin.Context) bool {
	if c.Request.Context().Err() != nil {
		c.Abort()
		return true
	}
	return false
}

func (p *Portal) fetchFailed(c *gin.Context, err error) {
	if gone(c) {
		return
	}
	if notFound(err) {
		p.render(c, http.StatusNotFound, Page{Error: &PageError{Message: "We could not find that page."}})
		return
	}

	utils.FromContext(c, p.logger).Error("Failed to load page", "path", c.Request.URL.Path, "error", err)
	p.render(c, http.StatusBadGateway, Page{
		Error: &PageError{
			Message: "We could not load this page.",
			Retry:   c.Request.URL.RequestURI(),
		},
	})
}

// ===== role resolution and screens =====

const usersKey = "all"

func (p *Portal) listUsers(token string) func(ctx context.Context) ([]*models.User, error) {
	return func(ctx context.Context) ([]*models.User, error) {
		res, err := p.backend.ListUsers(ctx, token)
		if err != nil {
			return nil, err
		}
		return res.Items, nil
	}
}

func (p *Portal) resolveRole(ctx context.Context, s *session.Session) (models.UserRole, error) {
	users, version, err := query.Fetch(ctx, p.query, query.TagUsers, usersKey, p.listUsers(s.AccessToken))
	if denied(err) && s.Authenticated() {
		// no user record yet: the sign-in registration failed or is still running
		if regErr := p.registerUser(ctx, s); regErr != nil {
			p.logger.Warn("User record still missing", "user_email", s.Email(), "error", regErr)
			return models.RoleUnknown, nil
		}
		users, version, err = query.Fetch(ctx, p.query, query.TagUsers, usersKey, p.listUsers(s.AccessToken))
	}
	if err != nil {
		if denied(err) {
			return models.RoleUnknown, nil
		}
		return models.RoleUnknown, err
	}
	return p.resolver.Resolve(version, users, s.Email()), nil
}

func denied(err error) bool {
	code := backend.StatusCode(err)
	return code == http.StatusForbidden || code == http.StatusUnauthorized
}

// registerUser ensures the caller has a user record; concurrent attempts for one email collapse
func (p *Portal) registerUser(ctx context.Context, s *session.Session) error {
	return p.query.Mutate(ctx, events.UserRegistered, s.Email(), func(ctx context.Context) error {
		_, err := p.backend.RegisterUser(ctx, s.AccessToken, s.Profile.DisplayName, s.Profile.PhotoURL)
		return err
	})
}

// load resolves the role and fetches a screen's data concurrently. Role-dependent
// content is rendered only after both finish. A role outside roles gets a minimal
// page; ok is false whenever a response has already been written.
func load[T any](p *Portal, c *gin.Context, roles []models.UserRole, fetch func(ctx context.Context, s *session.Session) (T, error)) (role models.UserRole, data T, ok bool) {
	s := session.FromContext(c)

	var fetchErr error
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		role, err = p.resolveRole(ctx, s)
		return err
	})
	if fetch != nil {
		g.Go(func() error {
			data, fetchErr = fetch(ctx, s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.fetchFailed(c, err)
		return role, data, false
	}
	if len(roles) > 0 && !slices.Contains(roles, role) {
		if !gone(c) {
			p.render(c, http.StatusOK, Page{Role: role})
		}
		return role, data, false
	}
	if fetchErr != nil {
		p.fetchFailed(c, fetchErr)
		return role, data, false
	}
	return role, data, true
}

// ===== mutations =====

var (
	errUnknownUser  = errors.New("user not found")
	errNoRoleChange = errors.New("role cannot change further")
)

func mutationStatus(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, query.ErrMutationInFlight):
		return http.StatusConflict, err.Error()
	case errors.As(err, &verrs):
		return http.StatusBadRequest, verrs.Error()
	case errors.Is(err, errUnknownUser):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errNoRoleChange):
		return http.StatusBadRequest, err.Error()
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return apiErr.StatusCode, apiErr.Message
	}
	return http.StatusBadGateway, "The change could not be saved. Please try again."
}

func (p *Portal) mutationFailed(c *gin.Context, err error) {
	status, message := mutationStatus(err)
	utils.FromContext(c, p.logger).Warn("Mutation failed", "path", c.Request.URL.Path, "status", status, "error", err)

	p.notify(c, session.LevelError, message)
	p.render(c, status, Page{Error: &PageError{Message: message}})
}

// mutate runs one backend write for entity, refusing a second concurrent write to the
// same entity. The affected tags are invalidated only after the write succeeds.
func mutate[T any](p *Portal, c *gin.Context, kind events.EventType, entity, success string, fn func(ctx context.Context, token string) (T, error)) {
	s := session.FromContext(c)

	var result T
	err := p.query.Mutate(c.Request.Context(), kind, entity, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx, s.AccessToken)
		return err
	})
	if gone(c) {
		return
	}
	if err != nil {
		p.mutationFailed(c, err)
		return
	}

	utils.FromContext(c, p.logger).Info("Mutation applied", "kind", kind, "entity", entity, "user_email", s.Email())
	p.notify(c, session.LevelSuccess, success)
	p.render(c, http.StatusOK, Page{Data: result})
}

// done adapts a write with no result to mutate
func done(fn func(ctx context.Context, token string) error) func(ctx context.Context, token string) (gin.H, error) {
	return func(ctx context.Context, token string) (gin.H, error) {
		if err := fn(ctx, token); err != nil {
			return nil, err
		}
		return gin.H{"ok": true}, nil
	}
}

func (p *Portal) idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		p.notify(c, session.LevelError, "Invalid "+name)
		p.render(c, http.StatusBadRequest, Page{Error: &PageError{Message: "invalid " + name}})
		return 0, false
	}
	return uint(id), true
}

func (p *Portal) bind(c *gin.Context, dest interface{}) bool {
	err := c.ShouldBind(dest)
	if err == nil {
		err = p.validator.Struct(dest)
	}
	if err != nil {
		message := "Please check the form and try again."
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			message = verrs.Error()
		}
		p.notify(c, session.LevelError, message)
		p.render(c, http.StatusBadRequest, Page{Error: &PageError{Message: message}, Data: gin.H{"validation_errors": verrs}})
		return false
	}
	return true
}
