package portal

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/access"
	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/session"
)

const hubLink = "/dashboard"

// cached reads through the query cache, dropping the version
func cached[T any](ctx context.Context, p *Portal, tag query.Tag, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, _, err := query.Fetch(ctx, p.query, tag, key, fetch)
	return v, err
}

func courseID(c *models.Course) string { return strconv.FormatUint(uint64(c.ID), 10) }

// DashboardView is the landing screen of a signed-in user
type DashboardView struct {
	Welcome string            `json:"welcome"`
	Actions []access.Action   `json:"actions"`
	Menu    []access.MenuItem `json:"menu"`
}

// Menu returns the navigation for the resolved role
func (p *Portal) Menu(c *gin.Context) {
	role, _, ok := load[any](p, c, nil, nil)
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: p.menus.For(role)})
}

func (p *Portal) Dashboard(c *gin.Context) {
	role, _, ok := load[any](p, c, nil, nil)
	if !ok {
		return
	}
	s := session.FromContext(c)
	p.render(c, http.StatusOK, Page{Role: role, Data: DashboardView{
		Welcome: access.Welcome(role, s.Profile.DisplayName),
		Actions: access.Permitted(role),
		Menu:    p.menus.For(role),
	}})
}

// Profile shows the session profile and, once registered, the user record
func (p *Portal) Profile(c *gin.Context) {
	role, user, ok := load(p, c, nil, func(ctx context.Context, s *session.Session) (*models.User, error) {
		user, err := cached(ctx, p, query.TagUsers, "profile:"+s.Email(), func(ctx context.Context) (*models.User, error) {
			return p.backend.GetUser(ctx, s.AccessToken, s.Email())
		})
		if notFound(err) {
			return nil, nil
		}
		return user, err
	})
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: user})
}

// Courses is the catalogue of active courses grouped by category
func (p *Portal) Courses(c *gin.Context) {
	role, courses, ok := load(p, c, nil, func(ctx context.Context, s *session.Session) ([]*models.Course, error) {
		return cached(ctx, p, query.TagCourses, "catalogue", func(ctx context.Context) ([]*models.Course, error) {
			res, err := p.backend.ListCourses(ctx, s.AccessToken, backend.CourseQuery{Status: string(models.CourseStatusActive)})
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
		Field:   func(c *models.Course) string { return c.Category },
		Buckets: models.CourseCategories,
		ID:      courseID,
		HubLink: "/courses",
	}
	if access.Can(role, access.ActionEnroll) {
		view.Actions = func(*models.Course) []string { return []string{"enroll"} }
		view.Kind = events.EnrollmentRequested
		view.InFlight = func(kind events.EventType, id string) bool {
			return p.query.InFlight(kind, enrollKey(id))
		}
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(courses)})
}

func (p *Portal) Course(c *gin.Context) {
	id, ok := p.idParam(c, "id")
	if !ok {
		return
	}

	role, course, ok := load(p, c, nil, func(ctx context.Context, s *session.Session) (*models.Course, error) {
		key := "course:" + strconv.FormatUint(uint64(id), 10) + ":" + s.Email()
		return cached(ctx, p, query.TagCourses, key, func(ctx context.Context) (*models.Course, error) {
			return p.backend.GetCourse(ctx, s.AccessToken, id)
		})
	})
	if !ok {
		return
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: course})
}

func notFound(err error) bool {
	var apiErr *backend.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
