package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnio/learnio/internal/access"
	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/cache"
	"github.com/learnio/learnio/internal/config"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/utils"
	"github.com/learnio/learnio/internal/validator"
)

const cookieName = "learnio_session"

// ===== fakes =====

type fakeBackend struct {
	mu          sync.Mutex
	users       []*models.User
	courses     []*models.Course
	enrollments []*models.Enrollment
	payments    []*models.Payment

	usersErr    error
	coursesErr  error
	reviewErr   error
	registerErr error
	// registered joins users, and usersErr clears, once RegisterUser succeeds
	registered *models.User
	// hold blocks course reviews until closed
	hold chan struct{}
	// payHold blocks payment confirmations until closed
	payHold chan struct{}

	calls map[string]int
	roles map[string]models.UserRole
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}, roles: map[string]models.UserRole{}}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) called(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) ListUsers(ctx context.Context, token string) (*backend.Users, error) {
	f.called("ListUsers")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return &backend.Users{Items: f.users, Total: int64(len(f.users))}, nil
}

func (f *fakeBackend) GetUser(ctx context.Context, token, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "user not found"}
}

func (f *fakeBackend) RegisterUser(ctx context.Context, token, displayName, photoURL string) (*models.User, error) {
	f.called("RegisterUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	if f.registered != nil {
		f.users = append(f.users, f.registered)
		f.usersErr = nil
		f.registered = nil
	}
	return &models.User{DisplayName: displayName, Role: models.RoleStudent}, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, token, email string, req *models.UpdateProfileRequest) (*models.User, error) {
	return &models.User{Email: email, DisplayName: req.DisplayName}, nil
}

func (f *fakeBackend) UpdateRole(ctx context.Context, token, email string, role models.UserRole) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[email] = role
	for _, u := range f.users {
		if u.Email == email {
			u.Role = role
			return u, nil
		}
	}
	return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "user not found"}
}

func (f *fakeBackend) DeleteUser(ctx context.Context, token, email string) error { return nil }

func (f *fakeBackend) ListTeacherApplications(ctx context.Context, token string) (*backend.Users, error) {
	return &backend.Users{}, nil
}

func (f *fakeBackend) ApplyTeacher(ctx context.Context, token string, req *models.TeacherApplicationRequest) (*models.User, error) {
	return &models.User{TeacherApplicationStatus: models.TeacherApplicationPending}, nil
}

func (f *fakeBackend) AcceptTeacher(ctx context.Context, token string, id uint) error { return nil }
func (f *fakeBackend) RejectTeacher(ctx context.Context, token string, id uint) error { return nil }

func (f *fakeBackend) ListCourses(ctx context.Context, token string, q backend.CourseQuery) (*backend.Courses, error) {
	f.called("ListCourses")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.coursesErr != nil {
		return nil, f.coursesErr
	}
	out := &backend.Courses{Items: []*models.Course{}}
	for _, c := range f.courses {
		if q.Status != "" && string(c.Status) != q.Status {
			continue
		}
		if q.Teacher != "" && c.TeacherEmail != q.Teacher {
			continue
		}
		copied := *c
		out.Items = append(out.Items, &copied)
	}
	out.Total = int64(len(out.Items))
	return out, nil
}

func (f *fakeBackend) GetCourse(ctx context.Context, token string, id uint) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "course not found"}
}

func (f *fakeBackend) CreateCourse(ctx context.Context, token string, req *models.CreateCourseRequest) (*models.Course, error) {
	return &models.Course{Title: req.Title, Status: models.CourseStatusPending}, nil
}

func (f *fakeBackend) review(id uint, status models.CourseStatus) error {
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewErr != nil {
		return f.reviewErr
	}
	for _, c := range f.courses {
		if c.ID == id {
			c.Status = status
		}
	}
	return nil
}

func (f *fakeBackend) AcceptCourse(ctx context.Context, token string, id uint) error {
	return f.review(id, models.CourseStatusActive)
}

func (f *fakeBackend) RejectCourse(ctx context.Context, token string, id uint) error {
	return f.review(id, models.CourseStatusRejected)
}

func (f *fakeBackend) ListEnrollments(ctx context.Context, token, scope string) (*backend.Enrollments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &backend.Enrollments{Items: f.enrollments, Total: int64(len(f.enrollments))}, nil
}

func (f *fakeBackend) RequestEnrollment(ctx context.Context, token string, courseID uint) (*models.Enrollment, error) {
	return &models.Enrollment{CourseID: courseID, EnrollmentStatus: models.EnrollmentStatusPending}, nil
}

func (f *fakeBackend) AcceptEnrollment(ctx context.Context, token string, id uint) error { return nil }
func (f *fakeBackend) RejectEnrollment(ctx context.Context, token string, id uint) error { return nil }

func (f *fakeBackend) CreatePaymentIntent(ctx context.Context, token string, enrollmentID uint) (*models.PaymentIntentResponse, error) {
	return &models.PaymentIntentResponse{EnrollmentID: enrollmentID, ClientSecret: "pi_secret", Amount: 50, Currency: "usd"}, nil
}

func (f *fakeBackend) ConfirmPayment(ctx context.Context, token string, req *models.CreatePaymentRequest) (*models.Payment, error) {
	if f.payHold != nil {
		<-f.payHold
	}
	f.called("ConfirmPayment")
	return &models.Payment{EnrollmentID: req.EnrollmentID, TransactionID: req.TransactionID}, nil
}

func (f *fakeBackend) ListPayments(ctx context.Context, token string) (*backend.Payments, error) {
	return &backend.Payments{Items: f.payments}, nil
}

func (f *fakeBackend) DeletePayment(ctx context.Context, token string, id uint) error {
	f.called("DeletePayment")
	return nil
}

func (f *fakeBackend) ExportReport(ctx context.Context, token string, w io.Writer) (string, error) {
	_, err := w.Write([]byte("PK-xlsx"))
	return "learnio-report.xlsx", err
}

type stubIdentity struct{}

func (stubIdentity) SignInURL(redirectURI, state string) string {
	return "https://id.test/login?redirect_uri=" + url.QueryEscape(redirectURI) + "&state=" + state
}

func (stubIdentity) Exchange(ctx context.Context, code, state string) (*identity.Token, error) {
	if code != "good" {
		return nil, identity.ErrExchangeFailed
	}
	return &identity.Token{
		AccessToken: "jwt-ada",
		Expiry:      time.Now().Add(time.Hour),
		Identity:    identity.Identity{Email: "ada@example.com", DisplayName: "Ada"},
	}, nil
}

func (stubIdentity) Verify(ctx context.Context, accessToken string) (*identity.Identity, error) {
	return nil, identity.ErrInvalidToken
}

func (stubIdentity) CreateAccount(ctx context.Context, account identity.Account) error {
	if account.Email == "taken@example.com" {
		return identity.ErrAccountExists
	}
	return nil
}

func (stubIdentity) UpdateProfile(ctx context.Context, email, displayName, photoURL string) error {
	return nil
}

// ===== harness =====

type env struct {
	router  *gin.Engine
	store   *session.Store
	query   *query.Client
	backend *fakeBackend
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm := cache.NewCacheManager(client)
	store := session.NewStore(cm.Session, time.Hour, logger)
	qc := query.NewClient(cm, time.Minute, logger)
	fb := newFakeBackend()

	p := New(Deps{
		Backend:   fb,
		Query:     qc,
		Sessions:  store,
		Identity:  stubIdentity{},
		Validator: validator.New(),
		Session:   config.SessionConfig{CookieName: cookieName, TTL: time.Hour},
		PublicURL: "http://portal.test",
		Fallback:  access.FallbackMinimal,
		Logger:    utils.NewSlogLogger(logger),
	})
	router := gin.New()
	p.SetupRoutes(router)

	return &env{router: router, store: store, query: qc, backend: fb}
}

func (e *env) signIn(t *testing.T, email string) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	s, err := e.store.New(ctx)
	require.NoError(t, err)
	_, err = e.store.Set(ctx, s.ID, &identity.Token{
		AccessToken: "jwt-" + email,
		Expiry:      time.Now().Add(time.Hour),
		Identity:    identity.Identity{Email: email, DisplayName: "Tester"},
	})
	require.NoError(t, err)
	return &http.Cookie{Name: cookieName, Value: s.ID}
}

func (e *env) do(method, path string, cookie *http.Cookie, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type page struct {
	Status        session.Status         `json:"status"`
	Role          models.UserRole        `json:"role"`
	Data          json.RawMessage        `json:"data"`
	Error         *PageError             `json:"error"`
	Notifications []session.Notification `json:"notifications"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) page {
	t.Helper()
	var p page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p), w.Body.String())
	return p
}

func buckets[T any](t *testing.T, p page) map[string]Bucket[T] {
	t.Helper()
	var list []Bucket[T]
	require.NoError(t, json.Unmarshal(p.Data, &list))
	out := make(map[string]Bucket[T], len(list))
	for _, b := range list {
		out[b.Status] = b
	}
	return out
}

func seedAdmin(e *env) {
	e.backend.users = []*models.User{
		{ID: 1, Email: "admin@example.com", Role: models.RoleAdmin},
		{ID: 2, Email: "bob@example.com", Role: models.RoleStudent},
	}
	e.backend.courses = []*models.Course{
		{ID: 1, Title: "Go", Status: models.CourseStatusPending, Category: "Programming"},
		{ID: 2, Title: "Rust", Status: models.CourseStatusActive, Category: "Programming"},
		{ID: 3, Title: "Design", Status: models.CourseStatusActive, Category: "Design"},
	}
}

// ===== views =====

func TestPartition_ExhaustiveAndDisjoint(t *testing.T) {
	courses := []*models.Course{
		{ID: 1, Status: models.CourseStatusPending},
		{ID: 2, Status: models.CourseStatusActive},
		{ID: 3, Status: models.CourseStatusActive},
		{ID: 4, Status: "archived"},
	}

	groups := Partition(courses, courseStatus, courseStatuses...)
	require.Len(t, groups, 4)
	assert.Equal(t, []string{"pending", "active", "rejected", "archived"},
		[]string{groups[0].Status, groups[1].Status, groups[2].Status, groups[3].Status})

	total := 0
	seen := map[uint]bool{}
	for _, g := range groups {
		for _, c := range g.Items {
			assert.False(t, seen[c.ID], "course %d in two buckets", c.ID)
			seen[c.ID] = true
			assert.Equal(t, g.Status, string(c.Status))
		}
		total += len(g.Items)
	}
	assert.Equal(t, len(courses), total)
}

func TestListView_PlaceholderAndDisabledRows(t *testing.T) {
	courses := []*models.Course{
		{ID: 1, Status: models.CourseStatusPending},
		{ID: 2, Status: models.CourseStatusActive},
		{ID: 3, Status: models.CourseStatusActive},
	}
	view := ListView[*models.Course]{
		Field:   courseStatus,
		Buckets: courseStatuses,
		ID:      courseID,
		Actions: pendingActions(courseStatus, string(models.CourseStatusPending)),
		Kind:    events.CourseAccepted,
		HubLink: hubLink,
		InFlight: func(kind events.EventType, id string) bool {
			return id == "1"
		},
	}

	out := view.Render(courses)
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].Count)
	assert.Equal(t, []string{"accept", "reject"}, out[0].Rows[0].Actions)
	assert.True(t, out[0].Rows[0].Disabled)

	assert.Equal(t, 2, out[1].Count)
	assert.Empty(t, out[1].Rows[0].Actions)
	assert.False(t, out[1].Rows[0].Disabled)

	assert.Equal(t, 0, out[2].Count)
	require.NotNil(t, out[2].Placeholder)
	assert.Equal(t, "No items", out[2].Placeholder.Message)
	assert.Equal(t, hubLink, out[2].Placeholder.Link)
}

// ===== guard and navigation =====

func TestAnonymousIsRedirectedToLogin(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, "/app/manage-courses", nil, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirect=%2Fapp%2Fmanage-courses", w.Header().Get("Location"))
	assert.Equal(t, 0, e.backend.count("ListCourses"))
}

func TestDashboard_AdminMenu(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "Admin@Example.com")

	w := e.do(http.MethodGet, "/app/dashboard", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)

	p := decode(t, w)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.Equal(t, session.StatusAuthenticated, p.Status)

	var view DashboardView
	require.NoError(t, json.Unmarshal(p.Data, &view))
	assert.Contains(t, view.Actions, access.ActionReviewCourses)
	assert.Equal(t, "/dashboard/teacher-requests", view.Menu[1].Path)
	assert.Equal(t, "/courses", view.Menu[len(view.Menu)-1].Path)
}

func TestDashboard_UnregisteredUserSeesMinimalMenu(t *testing.T) {
	e := setup(t)
	e.backend.usersErr = &backend.APIError{StatusCode: http.StatusForbidden, Message: "user not registered"}
	cookie := e.signIn(t, "new@example.com")

	w := e.do(http.MethodGet, "/app/menu", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)

	p := decode(t, w)
	assert.Equal(t, models.RoleUnknown, p.Role)
	var menu []access.MenuItem
	require.NoError(t, json.Unmarshal(p.Data, &menu))
	assert.Equal(t, access.MenuFor(models.RoleUnknown), menu)
	assert.Equal(t, 1, e.backend.count("RegisterUser"))
}

func TestRoleMismatchRendersMinimalPage(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "bob@example.com")

	w := e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)

	p := decode(t, w)
	assert.Equal(t, models.RoleStudent, p.Role)
	assert.Empty(t, p.Data)
	assert.Nil(t, p.Error)
}

func TestFetchErrorRendersRetry(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	e.backend.coursesErr = errors.New("connection refused")
	cookie := e.signIn(t, "admin@example.com")

	w := e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	p := decode(t, w)
	require.NotNil(t, p.Error)
	assert.Equal(t, "/app/manage-courses", p.Error.Retry)
}

func TestCourseNotFound(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "bob@example.com")

	w := e.do(http.MethodGet, "/app/courses/99", cookie, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ===== review screens =====

func TestManageCourses_GroupsByStatus(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "admin@example.com")

	w := e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := buckets[*models.Course](t, decode(t, w))
	assert.Equal(t, 1, got["pending"].Count)
	assert.Equal(t, 2, got["active"].Count)
	assert.Equal(t, 0, got["rejected"].Count)
	assert.NotNil(t, got["rejected"].Placeholder)
}

func TestAcceptCourse_InvalidatesOnlyCourses(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "admin@example.com")

	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/app/manage-courses", cookie, nil).Code)
	usersBefore := e.backend.count("ListUsers")
	coursesBefore := e.backend.count("ListCourses")

	w := e.do(http.MethodPost, "/app/manage-courses/1/accept", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode(t, w)
	require.Len(t, p.Notifications, 1)
	assert.Equal(t, session.LevelSuccess, p.Notifications[0].Level)

	w = e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.Course](t, decode(t, w))
	assert.Equal(t, 0, got["pending"].Count)
	assert.Equal(t, 3, got["active"].Count)

	assert.Equal(t, coursesBefore+1, e.backend.count("ListCourses"))
	assert.Equal(t, usersBefore, e.backend.count("ListUsers"))
}

func TestAcceptCourse_FailureNotifies(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	e.backend.reviewErr = &backend.APIError{StatusCode: http.StatusBadRequest, Message: "course is not pending"}
	cookie := e.signIn(t, "admin@example.com")

	w := e.do(http.MethodPost, "/app/manage-courses/1/accept", cookie, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	p := decode(t, w)
	require.Len(t, p.Notifications, 1)
	assert.Equal(t, session.LevelError, p.Notifications[0].Level)
	assert.Equal(t, "course is not pending", p.Notifications[0].Message)

	w = e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.Course](t, decode(t, w))
	assert.Equal(t, 1, got["pending"].Count)
	assert.Equal(t, 2, got["active"].Count)
}

func TestReviewInFlight_DisablesRowAndRejectsSecondWrite(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	e.backend.hold = make(chan struct{})
	cookie := e.signIn(t, "admin@example.com")

	first := make(chan int, 1)
	go func() {
		first <- e.do(http.MethodPost, "/app/manage-courses/1/accept", cookie, nil).Code
	}()
	require.Eventually(t, func() bool {
		return e.query.InFlight(events.CourseAccepted, "1")
	}, 2*time.Second, 10*time.Millisecond)

	w := e.do(http.MethodGet, "/app/manage-courses", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.Course](t, decode(t, w))
	require.Len(t, got["pending"].Rows, 1)
	assert.True(t, got["pending"].Rows[0].Disabled)

	w = e.do(http.MethodPost, "/app/manage-courses/1/reject", cookie, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(e.backend.hold)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestUsers_PromoteAndSelfProtection(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "admin@example.com")

	w := e.do(http.MethodGet, "/app/users", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.User](t, decode(t, w))
	assert.Empty(t, got["admin"].Rows[0].Actions)
	assert.Equal(t, []string{"promote", "delete"}, got["student"].Rows[0].Actions)

	w = e.do(http.MethodPost, "/app/users/bob@example.com/promote", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleTeacher, e.backend.roles["bob@example.com"])

	// the promoted user now resolves as a teacher
	bob := e.signIn(t, "bob@example.com")
	p := decode(t, e.do(http.MethodGet, "/app/dashboard", bob, nil))
	assert.Equal(t, models.RoleTeacher, p.Role)

	w = e.do(http.MethodPost, "/app/users/ghost@example.com/demote", cookie, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportReport(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "admin@example.com")

	w := e.do(http.MethodGet, "/app/reports/export", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "learnio-report.xlsx")
	assert.Equal(t, "PK-xlsx", w.Body.String())
}

// ===== student screens =====

func TestMyEnrollments_PayAction(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	e.backend.enrollments = []*models.Enrollment{
		{ID: 1, Price: 50, EnrollmentStatus: models.EnrollmentStatusActive, PaymentStatus: models.PaymentStatusUnpaid},
		{ID: 2, Price: 50, EnrollmentStatus: models.EnrollmentStatusActive, PaymentStatus: models.PaymentStatusPaid},
		{ID: 3, Price: 0, EnrollmentStatus: models.EnrollmentStatusActive, PaymentStatus: models.PaymentStatusUnpaid},
		{ID: 4, Price: 50, EnrollmentStatus: models.EnrollmentStatusPending, PaymentStatus: models.PaymentStatusUnpaid},
	}
	cookie := e.signIn(t, "bob@example.com")

	w := e.do(http.MethodGet, "/app/my-enrollments", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.Enrollment](t, decode(t, w))

	active := got["active"].Rows
	require.Len(t, active, 3)
	assert.Equal(t, []string{"pay"}, active[0].Actions)
	assert.Empty(t, active[1].Actions)
	assert.Empty(t, active[2].Actions)
	assert.Equal(t, 1, got["pending"].Count)
}

func TestConfirmCheckout(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	cookie := e.signIn(t, "bob@example.com")

	w := e.do(http.MethodPost, "/app/checkout/1/confirm", cookie, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, e.backend.count("ConfirmPayment"))

	w = e.do(http.MethodPost, "/app/checkout/1/confirm", cookie, gin.H{"payment_intent_id": "pi_123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, e.backend.count("ConfirmPayment"))
}

func TestCheckoutInFlight_DoesNotBlockPaymentDelete(t *testing.T) {
	e := setup(t)
	seedAdmin(e)
	e.backend.enrollments = []*models.Enrollment{
		{ID: 7, Price: 50, EnrollmentStatus: models.EnrollmentStatusActive, PaymentStatus: models.PaymentStatusUnpaid},
	}
	e.backend.payHold = make(chan struct{})
	cookie := e.signIn(t, "bob@example.com")

	first := make(chan int, 1)
	go func() {
		first <- e.do(http.MethodPost, "/app/checkout/7/confirm", cookie, gin.H{"payment_intent_id": "pi_7"}).Code
	}()
	require.Eventually(t, func() bool {
		return e.query.InFlight(events.PaymentConfirmed, checkoutKey("7"))
	}, 2*time.Second, 10*time.Millisecond)

	// payment 7 is a different entity than enrollment 7
	w := e.do(http.MethodPost, "/app/payment-history/7/delete", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, e.backend.count("DeletePayment"))

	w = e.do(http.MethodGet, "/app/my-enrollments", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := buckets[*models.Enrollment](t, decode(t, w))
	require.Len(t, got["active"].Rows, 1)
	assert.True(t, got["active"].Rows[0].Disabled)

	w = e.do(http.MethodPost, "/app/checkout/7/confirm", cookie, gin.H{"payment_intent_id": "pi_7"})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(e.backend.payHold)
	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, 1, e.backend.count("ConfirmPayment"))
}

// ===== sign-in flow =====

func TestSignInFlow(t *testing.T) {
	e := setup(t)
	seedAdmin(e)

	w := e.do(http.MethodGet, "/app/my-courses", nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]

	w = e.do(http.MethodGet, w.Header().Get("Location"), cookie, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://id.test/login"))

	// protected pages wait while sign-in is in progress
	w = e.do(http.MethodGet, "/app/dashboard", cookie, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	s, err := e.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotEmpty(t, s.OAuthState)

	w = e.do(http.MethodGet, "/auth/callback?code=good&state="+s.OAuthState, cookie, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/app/my-courses", w.Header().Get("Location"))
	assert.Equal(t, 1, e.backend.count("RegisterUser"))

	p := decode(t, e.do(http.MethodGet, "/app/dashboard", cookie, nil))
	assert.Equal(t, session.StatusAuthenticated, p.Status)
	require.NotEmpty(t, p.Notifications)
	assert.Equal(t, "Welcome, Ada", p.Notifications[0].Message)

	w = e.do(http.MethodPost, "/auth/logout", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	p = decode(t, w)
	assert.Equal(t, session.StatusAnonymous, p.Status)
	require.Len(t, p.Notifications, 1)
	assert.Equal(t, session.LevelInfo, p.Notifications[0].Level)

	assert.Equal(t, http.StatusSeeOther, e.do(http.MethodGet, "/app/dashboard", cookie, nil).Code)
}

// beginSignIn walks an anonymous browser to the provider and returns its cookie and oauth state
func (e *env) beginSignIn(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	w := e.do(http.MethodGet, "/app/dashboard", nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookie := w.Result().Cookies()[0]

	w = e.do(http.MethodGet, w.Header().Get("Location"), cookie, nil)
	require.Equal(t, http.StatusFound, w.Code)

	s, err := e.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	return cookie, s.OAuthState
}

func TestCallback_RegistrationFailureIsRetriedOnLoad(t *testing.T) {
	e := setup(t)
	e.backend.usersErr = &backend.APIError{StatusCode: http.StatusForbidden, Message: "user not registered"}
	e.backend.registerErr = &backend.APIError{StatusCode: http.StatusBadGateway, Message: "Bad Gateway"}
	e.backend.registered = &models.User{ID: 9, Email: "ada@example.com", Role: models.RoleStudent}

	cookie, state := e.beginSignIn(t)
	w := e.do(http.MethodGet, "/auth/callback?code=good&state="+state, cookie, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, 1, e.backend.count("RegisterUser"))

	p := decode(t, e.do(http.MethodGet, "/app/menu", cookie, nil))
	assert.Equal(t, models.RoleUnknown, p.Role)
	require.NotEmpty(t, p.Notifications)
	assert.Equal(t, session.LevelError, p.Notifications[0].Level)
	for _, n := range p.Notifications {
		assert.NotContains(t, n.Message, "Welcome")
	}
	assert.Equal(t, 2, e.backend.count("RegisterUser"))

	e.backend.mu.Lock()
	e.backend.registerErr = nil
	e.backend.mu.Unlock()

	p = decode(t, e.do(http.MethodGet, "/app/dashboard", cookie, nil))
	assert.Equal(t, models.RoleStudent, p.Role)
	assert.Equal(t, 3, e.backend.count("RegisterUser"))

	// the record exists now; later loads do not register again
	p = decode(t, e.do(http.MethodGet, "/app/dashboard", cookie, nil))
	assert.Equal(t, models.RoleStudent, p.Role)
	assert.Equal(t, 3, e.backend.count("RegisterUser"))
}

func TestCallback_StateMismatch(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, "/login", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	cookie := w.Result().Cookies()[0]

	w = e.do(http.MethodGet, "/auth/callback?code=good&state=forged", cookie, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	p := decode(t, w)
	assert.Equal(t, session.StatusAnonymous, p.Status)
	require.Len(t, p.Notifications, 1)
	assert.Equal(t, session.LevelError, p.Notifications[0].Level)
	assert.Equal(t, 0, e.backend.count("RegisterUser"))
}

func TestRegister(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/auth/register", nil, gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := gin.H{"email": "taken@example.com", "password": "Str0ng!Pass", "display_name": "Ada"}
	w = e.do(http.MethodPost, "/auth/register", nil, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	body["email"] = "fresh@example.com"
	w = e.do(http.MethodPost, "/auth/register", nil, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"next":"/login"}`, string(decode(t, w).Data))
}
