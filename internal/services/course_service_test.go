package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

func applicationRequest() *models.TeacherApplicationRequest {
	return &models.TeacherApplicationRequest{
		Title:      "Senior Go developer",
		Category:   "web-development",
		Experience: "experienced",
	}
}

func TestTeacherService_ApplyAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teachers := f.manager.Teacher()

	applicant, err := teachers.Apply(ctx, f.student, applicationRequest())
	require.NoError(t, err)
	assert.Equal(t, models.TeacherApplicationPending, applicant.TeacherApplicationStatus)
	require.NotNil(t, applicant.TeacherCategory)
	assert.Equal(t, "web-development", *applicant.TeacherCategory)

	// a second application while pending is refused
	_, err = teachers.Apply(ctx, f.reload(f.student), applicationRequest())
	var rule *BusinessRuleError
	require.ErrorAs(t, err, &rule)
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	_, err = teachers.Accept(ctx, f.teacher, f.student.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := teachers.Accept(ctx, f.admin, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeacherApplicationAccepted, accepted.TeacherApplicationStatus)
	assert.Equal(t, models.RoleTeacher, f.reload(f.student).Role)

	// decisions are final
	_, err = teachers.Reject(ctx, f.admin, f.student.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	assert.Equal(t, []events.EventType{events.TeacherApplied, events.TeacherAccepted}, f.publisher.Types())
}

func TestTeacherService_RejectThenReapply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teachers := f.manager.Teacher()

	_, err := teachers.Apply(ctx, f.student, applicationRequest())
	require.NoError(t, err)

	rejected, err := teachers.Reject(ctx, f.admin, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, rejected.Role)

	again, err := teachers.Apply(ctx, f.reload(f.student), applicationRequest())
	require.NoError(t, err)
	assert.Equal(t, models.TeacherApplicationPending, again.TeacherApplicationStatus)
}

func TestTeacherService_ApplyRequiresStudent(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Teacher().Apply(context.Background(), f.teacher, applicationRequest())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.manager.Teacher().Apply(context.Background(), nil, applicationRequest())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTeacherService_ListApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Teacher().Apply(ctx, f.student, applicationRequest())
	require.NoError(t, err)

	_, err = f.manager.Teacher().ListApplications(ctx, f.teacher, 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := f.manager.Teacher().ListApplications(ctx, f.admin, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, f.student.Email, res.Items[0].Email)
}

func courseRequest(price float64) *models.CreateCourseRequest {
	return &models.CreateCourseRequest{
		Title:       "Concurrency in Go",
		Description: "Goroutines, channels and the memory model",
		Price:       price,
		Category:    "web-development",
	}
}

func TestCourseService_CreateIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Course().Create(ctx, f.student, courseRequest(10))
	assert.ErrorIs(t, err, ErrForbidden)

	course, err := f.manager.Course().Create(ctx, f.teacher, courseRequest(10))
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPending, course.Status)
	assert.Equal(t, f.teacher.Email, course.TeacherEmail)
	assert.Zero(t, course.StudentsCount)

	// pending courses are hidden from everyone but the owner and admins
	_, err = f.manager.Course().GetByID(ctx, f.student, course.ID)
	assert.ErrorIs(t, err, ErrCourseNotFound)
	_, err = f.manager.Course().GetByID(ctx, f.teacher, course.ID)
	assert.NoError(t, err)
}

func TestCourseService_ReviewIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		review func(CourseService, context.Context, *models.User, uint) (*models.Course, error)
		want   models.CourseStatus
		event  events.EventType
	}{
		{"accept", CourseService.Accept, models.CourseStatusActive, events.CourseAccepted},
		{"reject", CourseService.Reject, models.CourseStatusRejected, events.CourseRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			courses := f.manager.Course()

			course, err := courses.Create(ctx, f.teacher, courseRequest(25))
			require.NoError(t, err)

			_, err = tt.review(courses, ctx, f.teacher, course.ID)
			assert.ErrorIs(t, err, ErrForbidden)

			reviewed, err := tt.review(courses, ctx, f.admin, course.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reviewed.Status)

			_, err = courses.Accept(ctx, f.admin, course.ID)
			assert.ErrorIs(t, err, ErrInvalidStatusTransition)
			_, err = courses.Reject(ctx, f.admin, course.ID)
			assert.ErrorIs(t, err, ErrInvalidStatusTransition)

			title := "Renamed"
			_, err = courses.Update(ctx, f.teacher, course.ID, &models.UpdateCourseRequest{Title: &title})
			assert.ErrorIs(t, err, ErrCourseNotEditable)
			assert.ErrorIs(t, courses.Delete(ctx, f.teacher, course.ID), ErrCourseNotEditable)

			assert.Equal(t, []events.EventType{events.CourseSubmitted, tt.event}, f.publisher.Types())
		})
	}
}

func TestCourseService_UpdatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	course, err := f.manager.Course().Create(ctx, f.teacher, courseRequest(25))
	require.NoError(t, err)

	price := 40.0
	other := f.addUser("other.teacher@learnio.dev", models.RoleTeacher)
	_, err = f.manager.Course().Update(ctx, other, course.ID, &models.UpdateCourseRequest{Price: &price})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := f.manager.Course().Update(ctx, f.teacher, course.ID, &models.UpdateCourseRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.Price)
	assert.Equal(t, models.CourseStatusPending, updated.Status)

	require.NoError(t, f.manager.Course().Delete(ctx, f.teacher, course.ID))
	_, err = f.manager.Course().GetByID(ctx, f.admin, course.ID)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCourseService_ListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.activeCourse(15)
	_, err := f.manager.Course().Create(ctx, f.teacher, courseRequest(20))
	require.NoError(t, err)

	public, err := f.manager.Course().List(ctx, nil, repositories.CourseFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, public.Total)

	own, err := f.manager.Course().List(ctx, f.teacher, repositories.CourseFilters{TeacherEmail: f.teacher.Email})
	require.NoError(t, err)
	assert.EqualValues(t, 2, own.Total)

	all, err := f.manager.Course().List(ctx, f.admin, repositories.CourseFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
}
