package portal

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/session"
)

var enrollmentStatuses = []string{
	string(models.EnrollmentStatusPending),
	string(models.EnrollmentStatusActive),
	string(models.EnrollmentStatusRejected),
}

func enrollmentStatus(e *models.Enrollment) string { return string(e.EnrollmentStatus) }

func enrollmentID(e *models.Enrollment) string { return strconv.FormatUint(uint64(e.ID), 10) }

// enrollments lists the caller's enrollments in scope ("mine" or "teaching")
func (p *Portal) enrollments(scope string) func(ctx context.Context, s *session.Session) ([]*models.Enrollment, error) {
	return func(ctx context.Context, s *session.Session) ([]*models.Enrollment, error) {
		return cached(ctx, p, query.TagEnrollments, scope+":"+s.Email(), func(ctx context.Context) ([]*models.Enrollment, error) {
			res, err := p.backend.ListEnrollments(ctx, s.AccessToken, scope)
			if err != nil {
				return nil, err
			}
			return res.Items, nil
		})
	}
}

// AddCourse submits a course for review
func (p *Portal) AddCourse(c *gin.Context) {
	var req models.CreateCourseRequest
	if !p.bind(c, &req) {
		return
	}

	s := session.FromContext(c)
	mutate(p, c, events.CourseSubmitted, s.Email()+":"+req.Title, "Course submitted for review", func(ctx context.Context, token string) (*models.Course, error) {
		return p.backend.CreateCourse(ctx, token, &req)
	})
}

// MyCourses groups the teacher's own courses by review status
func (p *Portal) MyCourses(c *gin.Context) {
	role, courses, ok := load(p, c, teacherOnly, func(ctx context.Context, s *session.Session) ([]*models.Course, error) {
		return cached(ctx, p, query.TagCourses, "teaching:"+s.Email(), func(ctx context.Context) ([]*models.Course, error) {
			res, err := p.backend.ListCourses(ctx, s.AccessToken, backend.CourseQuery{Teacher: s.Email()})
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
		Field:   courseStatus,
		Buckets: courseStatuses,
		ID:      courseID,
		HubLink: "/add-course",
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(courses)})
}

// EnrollmentRequests lists enrollments into the teacher's courses
func (p *Portal) EnrollmentRequests(c *gin.Context) {
	role, enrollments, ok := load(p, c, teacherOnly, p.enrollments("teaching"))
	if !ok {
		return
	}

	view := ListView[*models.Enrollment]{
		Field:    enrollmentStatus,
		Buckets:  enrollmentStatuses,
		ID:       enrollmentID,
		Actions:  pendingActions(enrollmentStatus, string(models.EnrollmentStatusPending)),
		Kind:     events.EnrollmentAccepted,
		HubLink:  hubLink,
		InFlight: p.query.InFlight,
	}
	p.render(c, http.StatusOK, Page{Role: role, Data: view.Render(enrollments)})
}

func (p *Portal) AcceptEnrollment(c *gin.Context) {
	p.reviewEnrollment(c, events.EnrollmentAccepted, "Enrollment accepted", func(ctx context.Context, token string, id uint) error {
		return p.backend.AcceptEnrollment(ctx, token, id)
	})
}

func (p *Portal) RejectEnrollment(c *gin.Context) {
	p.reviewEnrollment(c, events.EnrollmentRejected, "Enrollment rejected", func(ctx context.Context, token string, id uint) error {
		return p.backend.RejectEnrollment(ctx, token, id)
	})
}

func (p *Portal) reviewEnrollment(c *gin.Context, kind events.EventType, success string, fn func(ctx context.Context, token string, id uint) error) {
	id, ok := p.idParam(c, "id")
	if !ok {
		return
	}
	mutate(p, c, kind, strconv.FormatUint(uint64(id), 10), success, done(func(ctx context.Context, token string) error {
		return fn(ctx, token, id)
	}))
}
