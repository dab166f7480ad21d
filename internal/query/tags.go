package query

import (
	"strings"

	"github.com/learnio/learnio/internal/events"
)

// Tag names a cached collection
type Tag string

const (
	TagUsers       Tag = "Users"
	TagCourses     Tag = "Courses"
	TagEnrollments Tag = "Enrollments"
	TagPayments    Tag = "Payments"
	TagTeachers    Tag = "Teachers"
)

// Tags lists every tag
var Tags = []Tag{TagUsers, TagCourses, TagEnrollments, TagPayments, TagTeachers}

// invalidates is the exact tag set each successful write makes stale.
// Both the portal mutation path and the event consumer read it.
var invalidates = map[events.EventType][]Tag{
	events.UserRegistered:     {TagUsers},
	events.UserProfileUpdated: {TagUsers},
	events.UserPromoted:       {TagUsers},
	events.UserDemoted:        {TagUsers},
	events.UserDeleted:        {TagUsers},

	events.TeacherApplied:  {TagUsers, TagTeachers},
	events.TeacherAccepted: {TagUsers, TagTeachers},
	events.TeacherRejected: {TagUsers, TagTeachers},

	events.CourseSubmitted: {TagCourses},
	events.CourseUpdated:   {TagCourses},
	events.CourseDeleted:   {TagCourses},
	events.CourseAccepted:  {TagCourses},
	events.CourseRejected:  {TagCourses},

	events.EnrollmentRequested: {TagEnrollments},
	events.EnrollmentAccepted:  {TagEnrollments},
	events.EnrollmentRejected:  {TagEnrollments},

	// studentsCount moves with the payment
	events.PaymentConfirmed: {TagPayments, TagEnrollments, TagCourses},
	events.PaymentDeleted:   {TagPayments},
}

// TagsFor returns the tags a mutation invalidates, nil for unknown kinds
func TagsFor(kind events.EventType) []Tag {
	tags := invalidates[kind]
	if tags == nil {
		return nil
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

// family groups mutation kinds that act on the same entity, e.g. course.accepted and course.rejected
func family(kind events.EventType) string {
	if i := strings.IndexByte(string(kind), '.'); i > 0 {
		return string(kind)[:i]
	}
	return string(kind)
}
