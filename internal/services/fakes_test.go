package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/payment"
	"github.com/learnio/learnio/internal/repositories"
	"github.com/learnio/learnio/internal/validator"
)

// memStore is an in-memory stand-in for the postgres repositories
type memStore struct {
	mu          sync.Mutex
	nextID      uint
	users       map[uint]*models.User
	courses     map[uint]*models.Course
	enrollments map[uint]*models.Enrollment
	payments    map[uint]*models.Payment
	deleted     map[uint]bool

	failCreatePayment error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[uint]*models.User{},
		courses:     map[uint]*models.Course{},
		enrollments: map[uint]*models.Enrollment{},
		payments:    map[uint]*models.Payment{},
		deleted:     map[uint]bool{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func cloneMap[T any](in map[uint]*T) map[uint]*T {
	out := make(map[uint]*T, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

type memRepo struct{ s *memStore }

func (r *memRepo) User() repositories.UserRepository             { return (*memUsers)(r) }
func (r *memRepo) Course() repositories.CourseRepository         { return (*memCourses)(r) }
func (r *memRepo) Enrollment() repositories.EnrollmentRepository { return (*memEnrollments)(r) }
func (r *memRepo) Payment() repositories.PaymentRepository       { return (*memPayments)(r) }
func (r *memRepo) Ping(context.Context) error                    { return nil }
func (r *memRepo) Close() error                                  { return nil }

// WithTransaction restores the previous state when fn fails
func (r *memRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.s.mu.Lock()
	users, courses := cloneMap(r.s.users), cloneMap(r.s.courses)
	enrollments, payments := cloneMap(r.s.enrollments), cloneMap(r.s.payments)
	r.s.mu.Unlock()

	if err := fn(r); err != nil {
		r.s.mu.Lock()
		r.s.users, r.s.courses, r.s.enrollments, r.s.payments = users, courses, enrollments, payments
		r.s.mu.Unlock()
		return err
	}
	return nil
}

type memManager struct{ repo *memRepo }

func (m *memManager) Initialize() error                      { return nil }
func (m *memManager) GetRepository() repositories.Repository { return m.repo }
func (m *memManager) HealthCheck(ctx context.Context) error  { return nil }
func (m *memManager) Shutdown(ctx context.Context) error     { return nil }

// ===== users =====

type memUsers memRepo

func (r *memUsers) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now()
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

func (r *memUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) find(email string) *models.User {
	for _, u := range r.s.users {
		if u.Email == models.NormalizeEmail(email) {
			return u
		}
	}
	return nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.find(email)
	if u == nil {
		return nil, repositories.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsers) List(ctx context.Context, f repositories.UserFilters) ([]*models.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if len(f.ApplicationStatus) > 0 && !slices.Contains(f.ApplicationStatus, u.TeacherApplicationStatus) {
			continue
		}
		if f.Query != "" && !strings.Contains(u.Email, f.Query) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memUsers) UpdateProfile(ctx context.Context, email, displayName, photoURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.find(email)
	if u == nil {
		return repositories.ErrNotFound
	}
	u.DisplayName, u.PhotoURL = displayName, photoURL
	return nil
}

func (r *memUsers) UpdateRole(ctx context.Context, email string, role models.UserRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.find(email)
	if u == nil {
		return repositories.ErrNotFound
	}
	u.Role = role
	return nil
}

func (r *memUsers) SubmitApplication(ctx context.Context, id uint, title, category, experience string, from []models.TeacherApplicationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || !slices.Contains(from, u.TeacherApplicationStatus) {
		return repositories.ErrStaleUpdate
	}
	u.TeacherApplicationStatus = models.TeacherApplicationPending
	u.TeacherTitle, u.TeacherCategory, u.TeacherExperience = &title, &category, &experience
	return nil
}

func (r *memUsers) DecideApplication(ctx context.Context, id uint, status models.TeacherApplicationStatus, role *models.UserRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.TeacherApplicationStatus != models.TeacherApplicationPending {
		return repositories.ErrStaleUpdate
	}
	u.TeacherApplicationStatus = status
	if role != nil {
		u.Role = *role
	}
	return nil
}

func (r *memUsers) Delete(ctx context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.find(email)
	if u == nil {
		return repositories.ErrNotFound
	}
	delete(r.s.users, u.ID)
	return nil
}

// ===== courses =====

type memCourses memRepo

func (r *memCourses) Create(ctx context.Context, c *models.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	cp := *c
	r.s.courses[c.ID] = &cp
	return nil
}

func (r *memCourses) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCourses) List(ctx context.Context, f repositories.CourseFilters) ([]*models.Course, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Course
	for _, c := range r.s.courses {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.TeacherEmail != "" && c.TeacherEmail != models.NormalizeEmail(f.TeacherEmail) {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memCourses) Update(ctx context.Context, c *models.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.courses[c.ID]
	if !ok || existing.Status != models.CourseStatusPending {
		return repositories.ErrStaleUpdate
	}
	existing.Title, existing.Description, existing.ImageURL = c.Title, c.Description, c.ImageURL
	existing.Price, existing.Category = c.Price, c.Category
	return nil
}

func (r *memCourses) Delete(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.courses[id]
	if !ok || existing.Status != models.CourseStatusPending {
		return repositories.ErrStaleUpdate
	}
	delete(r.s.courses, id)
	return nil
}

func (r *memCourses) UpdateStatus(ctx context.Context, id uint, from, to models.CourseStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok || c.Status != from {
		return repositories.ErrStaleUpdate
	}
	c.Status = to
	return nil
}

func (r *memCourses) IncrementStudents(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.StudentsCount++
	return nil
}

// ===== enrollments =====

type memEnrollments memRepo

func (r *memEnrollments) Create(ctx context.Context, e *models.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	cp := *e
	r.s.enrollments[e.ID] = &cp
	return nil
}

func (r *memEnrollments) GetByID(ctx context.Context, id uint) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memEnrollments) List(ctx context.Context, f repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Enrollment
	for _, e := range r.s.enrollments {
		if f.UserEmail != "" && e.UserEmail != models.NormalizeEmail(f.UserEmail) {
			continue
		}
		if f.CourseTeacherEmail != "" && e.CourseTeacherEmail != models.NormalizeEmail(f.CourseTeacherEmail) {
			continue
		}
		if f.Status != nil && e.EnrollmentStatus != *f.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memEnrollments) FindOpen(ctx context.Context, userEmail string, courseID uint) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.enrollments {
		if e.UserEmail == models.NormalizeEmail(userEmail) && e.CourseID == courseID && e.EnrollmentStatus != models.EnrollmentStatusRejected {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memEnrollments) UpdateStatus(ctx context.Context, id uint, from, to models.EnrollmentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok || e.EnrollmentStatus != from {
		return repositories.ErrStaleUpdate
	}
	e.EnrollmentStatus = to
	return nil
}

func (r *memEnrollments) MarkPaid(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok || e.EnrollmentStatus != models.EnrollmentStatusActive || e.PaymentStatus != models.PaymentStatusUnpaid {
		return repositories.ErrStaleUpdate
	}
	e.PaymentStatus = models.PaymentStatusPaid
	return nil
}

// ===== payments =====

type memPayments memRepo

func (r *memPayments) Create(ctx context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreatePayment != nil {
		return r.s.failCreatePayment
	}
	for _, existing := range r.s.payments {
		if existing.EnrollmentID == p.EnrollmentID || existing.TransactionID == p.TransactionID {
			return repositories.ErrDuplicate
		}
	}
	p.ID = r.s.id()
	p.CreatedAt = time.Now()
	cp := *p
	r.s.payments[p.ID] = &cp
	return nil
}

func (r *memPayments) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || r.s.deleted[id] {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPayments) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memPayments) List(ctx context.Context, f repositories.PaymentFilters) ([]*models.Payment, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Payment
	for id, p := range r.s.payments {
		if r.s.deleted[id] {
			continue
		}
		if f.UserEmail != "" && p.UserEmail != models.NormalizeEmail(f.UserEmail) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memPayments) Delete(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[id]; !ok || r.s.deleted[id] {
		return repositories.ErrNotFound
	}
	r.s.deleted[id] = true
	return nil
}

// ===== payment provider =====

type fakeProvider struct {
	mu      sync.Mutex
	intents map[string]*payment.Intent
	next    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]*payment.Intent{}}
}

func (p *fakeProvider) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := "pi_" + strings.Repeat("x", p.next)
	intent := &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       payment.ToMinorUnits(req.Amount),
		Currency:     req.Currency,
		Status:       payment.IntentRequiresPaymentMethod,
		Metadata:     req.Metadata,
	}
	p.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (p *fakeProvider) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

// succeed marks the intent as paid, as the hosted card widget would
func (p *fakeProvider) succeed(id string) {
	p.mu.Lock()
	p.intents[id].Status = payment.IntentSucceeded
	p.mu.Unlock()
}

// ===== fixture =====

type fixture struct {
	store     *memStore
	repo      *memRepo
	provider  *fakeProvider
	publisher *events.MockEventPublisher
	manager   ServiceManager

	admin, teacher, student *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := newMemStore()
	repo := &memRepo{s: store}
	f := &fixture{
		store:     store,
		repo:      repo,
		provider:  newFakeProvider(),
		publisher: events.NewMockEventPublisher(logger),
	}

	f.manager = NewServiceManager(ServiceDeps{
		Repositories: &memManager{repo: repo},
		Publisher:    f.publisher,
		Payments:     f.provider,
		Logger:       logger,
		Validator:    validator.New(),
	}, ServiceManagerConfig{Currency: "usd"})
	require.NoError(t, f.manager.Initialize(context.Background()))

	f.admin = f.addUser("admin@learnio.dev", models.RoleAdmin)
	f.teacher = f.addUser("teacher@learnio.dev", models.RoleTeacher)
	f.student = f.addUser("student@learnio.dev", models.RoleStudent)
	return f
}

func (f *fixture) addUser(email string, role models.UserRole) *models.User {
	u := &models.User{
		Email:                    email,
		DisplayName:              strings.Split(email, "@")[0],
		Role:                     role,
		TeacherApplicationStatus: models.TeacherApplicationNone,
	}
	if err := f.repo.User().Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// reload returns the stored state of u, as the auth middleware would see it
func (f *fixture) reload(u *models.User) *models.User {
	fresh, err := f.repo.User().GetByID(context.Background(), u.ID)
	if err != nil {
		panic(err)
	}
	return fresh
}

func (f *fixture) activeCourse(price float64) *models.Course {
	c := &models.Course{
		Title:        "Go in Practice",
		Description:  "Idiomatic Go by example",
		Price:        price,
		Category:     "web-development",
		TeacherEmail: f.teacher.Email,
		TeacherName:  f.teacher.DisplayName,
		Status:       models.CourseStatusActive,
	}
	if err := f.repo.Course().Create(context.Background(), c); err != nil {
		panic(err)
	}
	return c
}
