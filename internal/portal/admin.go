package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/session"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func userID(u *models.User) string { return strconv.FormatUint(uint64(u.ID), 10) }

// allUsers is the shared user collection, the same one the role resolver reads
func (p *Portal) allUsers(ctx context.Context, s *session.Session) ([]*models.User, error) {
	return cached(ctx, p, query.TagUsers, usersKey, p.listUsers(s.AccessToken))
}

func pendingActions[T any](status func(T) string, pending string) func(T) []string {
	return func(item T) []string {
		if status(item) == pending {
			return []string{"accept", "reject"}
		}
		return []string{}
	}
}

// ===== Manage Courses =====

var courseStatuses = []string{
	string(models.CourseStatusPending),
	string(models.CourseStatusActive),
	string(models.CourseStatusRejected),
}

func courseStatus(c *models.Course) string { return string(c.Status) }

func (p *Portal) ManageCourses(c *gin.Context) {
	role, courses, ok := load(p, c, adminOnly, func(ctx context.Context, s *session.Session) ([]*models.Course, error) {
		return cached(ctx, p, query.TagCourses, "manage:"+s.Email(), func(ctx context.Context) ([]*models.Course, error) {
			res, err := p.backend.ListCourses(ctx, s.AccessToken, backend.CourseQuery{})
			if err != nil {
				return nil, err
			}
			return res.Items, nil
		})
	})
	if !ok {
		return
	}

	view := ListView[*models.Course]{
		Field:    courseStatus,
		Buckets:  courseStatuses,
		ID:       courseID,
		Actions:  pendingActions(courseStatus, string(models.CourseStatusPending)),
		Kind:     events.CourseAccepted,
		HubLink:  hubLink,
		InFlight: p.query.InFlight,
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(courses)})
}

func (p *Portal) AcceptCourse(c *gin.Context) {
	p.reviewCourse(c, events.CourseAccepted, "Course accepted", func(ctx context.Context, token string, id uint) error {
		return p.backend.AcceptCourse(ctx, token, id)
	})
}

func (p *Portal) RejectCourse(c *gin.Context) {
	p.reviewCourse(c, events.CourseRejected, "Course rejected", func(ctx context.Context, token string, id uint) error {
		return p.backend.RejectCourse(ctx, token, id)
	})
}

func (p *Portal) reviewCourse(c *gin.Context, kind events.EventType, success string, fn func(ctx context.Context, token string, id uint) error) {
	id, ok := p.idParam(c, "id")
	if !ok {
		return
	}
	mutate(p, c, kind, strconv.FormatUint(uint64(id), 10), success, done(func(ctx context.Context, token string) error {
		return fn(ctx, token, id)
	}))
}

// ===== Teacher Requests =====

var applicationStatuses = []string{
	string(models.TeacherApplicationPending),
	string(models.TeacherApplicationAccepted),
	string(models.TeacherApplicationRejected),
}

func applicationStatus(u *models.User) string { return string(u.TeacherApplicationStatus) }

func (p *Portal) TeacherRequests(c *gin.Context) {
	role, applicants, ok := load(p, c, adminOnly, func(ctx context.Context, s *session.Session) ([]*models.User, error) {
		return cached(ctx, p, query.TagTeachers, "applications:"+s.Email(), func(ctx context.Context) ([]*models.User, error) {
			res, err := p.backend.ListTeacherApplications(ctx, s.AccessToken)
			if err != nil {
				return nil, err
			}
			return res.Items, nil
		})
	})
	if !ok {
		return
	}

	view := ListView[*models.User]{
		Field:    applicationStatus,
		Buckets:  applicationStatuses,
		ID:       userID,
		Actions:  pendingActions(applicationStatus, string(models.TeacherApplicationPending)),
		Kind:     events.TeacherAccepted,
		HubLink:  hubLink,
		InFlight: p.query.InFlight,
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(applicants)})
}

func (p *Portal) AcceptTeacher(c *gin.Context) {
	p.reviewTeacher(c, events.TeacherAccepted, "Teacher request accepted", func(ctx context.Context, token string, id uint) error {
		return p.backend.AcceptTeacher(ctx, token, id)
	})
}

func (p *Portal) RejectTeacher(c *gin.Context) {
	p.reviewTeacher(c, events.TeacherRejected, "Teacher request rejected", func(ctx context.Context, token string, id uint) error {
		return p.backend.RejectTeacher(ctx, token, id)
	})
}

func (p *Portal) reviewTeacher(c *gin.Context, kind events.EventType, success string, fn func(ctx context.Context, token string, id uint) error) {
	id, ok := p.idParam(c, "id")
	if !ok {
		return
	}
	mutate(p, c, kind, strconv.FormatUint(uint64(id), 10), success, done(func(ctx context.Context, token string) error {
		return fn(ctx, token, id)
	}))
}

// ===== Users =====

var roleBuckets = []string{string(models.RoleAdmin), string(models.RoleTeacher), string(models.RoleStudent)}

func promotion(r models.UserRole) (models.UserRole, bool) {
	switch r {
	case models.RoleStudent:
		return models.RoleTeacher, true
	case models.RoleTeacher:
		return models.RoleAdmin, true
	default:
		return r, false
	}
}

func demotion(r models.UserRole) (models.UserRole, bool) {
	switch r {
	case models.RoleAdmin:
		return models.RoleTeacher, true
	case models.RoleTeacher:
		return models.RoleStudent, true
	default:
		return r, false
	}
}

func userActions(self string) func(*models.User) []string {
	return func(u *models.User) []string {
		if models.NormalizeEmail(u.Email) == self {
			return []string{}
		}
		actions := []string{}
		if _, ok := promotion(u.Role); ok {
			actions = append(actions, "promote")
		}
		if _, ok := demotion(u.Role); ok {
			actions = append(actions, "demote")
		}
		return append(actions, "delete")
	}
}

func (p *Portal) Users(c *gin.Context) {
	role, users, ok := load(p, c, adminOnly, p.allUsers)
	if !ok {
		return
	}

	s := session.FromContext(c)
	view := ListView[*models.User]{
		Field:    func(u *models.User) string { return string(u.Role) },
		Buckets:  roleBuckets,
		ID:       func(u *models.User) string { return models.NormalizeEmail(u.Email) },
		Actions:  userActions(s.Email()),
		Kind:     events.UserPromoted,
		HubLink:  hubLink,
		InFlight: p.query.InFlight,
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(users)})
}

func (p *Portal) PromoteUser(c *gin.Context) {
	p.changeRole(c, events.UserPromoted, promotion)
}

func (p *Portal) DemoteUser(c *gin.Context) {
	p.changeRole(c, events.UserDemoted, demotion)
}

func (p *Portal) changeRole(c *gin.Context, kind events.EventType, next func(models.UserRole) (models.UserRole, bool)) {
	s := session.FromContext(c)
	email := models.NormalizeEmail(c.Param("email"))

	mutate(p, c, kind, email, "Role updated", func(ctx context.Context, token string) (*models.User, error) {
		users, err := p.allUsers(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if models.NormalizeEmail(u.Email) != email {
				continue
			}
			role, ok := next(u.Role)
			if !ok {
				return nil, fmt.Errorf("%s cannot be changed from %s: %w", email, u.Role, errNoRoleChange)
			}
			return p.backend.UpdateRole(ctx, token, email, role)
		}
		return nil, fmt.Errorf("%s: %w", email, errUnknownUser)
	})
}

func (p *Portal) DeleteUser(c *gin.Context) {
	email := models.NormalizeEmail(c.Param("email"))
	mutate(p, c, events.UserDeleted, email, "User deleted", done(func(ctx context.Context, token string) error {
		return p.backend.DeleteUser(ctx, token, email)
	}))
}

// ===== Payments and reports =====

func (p *Portal) AllPayments(c *gin.Context) {
	role, payments, ok := load(p, c, adminOnly, p.payments)
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: payments})
}

func (p *Portal) payments(ctx context.Context, s *session.Session) ([]*models.Payment, error) {
	return cached(ctx, p, query.TagPayments, "payments:"+s.Email(), func(ctx context.Context) ([]*models.Payment, error) {
		res, err := p.backend.ListPayments(ctx, s.AccessToken)
		if err != nil {
			return nil, err
		}
		return res.Items, nil
	})
}

// ExportReport downloads the admin workbook
func (p *Portal) ExportReport(c *gin.Context) {
	if _, _, ok := load[any](p, c, adminOnly, nil); !ok {
		return
	}
	s := session.FromContext(c)

	var buf bytes.Buffer
	filename, err := p.backend.ExportReport(c.Request.Context(), s.AccessToken, &buf)
	if err != nil {
		p.fetchFailed(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
