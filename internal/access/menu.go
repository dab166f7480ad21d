package access

import (
	"github.com/learnio/learnio/internal/models"
)

// MenuItem is one navigation entry
type MenuItem struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Fallback decides what an unresolved role sees
type Fallback string

const (
	// FallbackMinimal shows only Dashboard and Profile until the role resolves
	FallbackMinimal Fallback = "minimal"
	// FallbackStudent shows the student entries, matching older deployments
	FallbackStudent Fallback = "student"
)

var (
	dashboard = MenuItem{Path: "/dashboard", Label: "Dashboard", Icon: "dashboard"}
	profile   = MenuItem{Path: "/dashboard/profile", Label: "Profile", Icon: "user"}

	adminMenu = []MenuItem{
		dashboard,
		{Path: "/dashboard/teacher-requests", Label: "Teacher Requests", Icon: "chalkboard-teacher"},
		{Path: "/dashboard/users", Label: "Users", Icon: "users"},
		{Path: "/dashboard/manage-courses", Label: "Manage Courses", Icon: "book"},
		{Path: "/dashboard/payments", Label: "All Payments", Icon: "credit-card"},
		profile,
	}

	teacherMenu = []MenuItem{
		dashboard,
		{Path: "/dashboard/add-course", Label: "Add Course", Icon: "plus"},
		{Path: "/dashboard/my-courses", Label: "My Courses", Icon: "book-open"},
		{Path: "/dashboard/enrollment-requests", Label: "Enrollment Requests", Icon: "user-check"},
		profile,
	}

	studentMenu = []MenuItem{
		dashboard,
		{Path: "/dashboard/my-enrollments", Label: "My Enrollments", Icon: "graduation-cap"},
		{Path: "/dashboard/payment-history", Label: "Payment History", Icon: "receipt"},
		{Path: "/dashboard/teach", Label: "Become a Teacher", Icon: "chalkboard"},
		profile,
	}

	unknownMenu = []MenuItem{dashboard, profile}

	commonMenu = []MenuItem{
		{Path: "/", Label: "Home", Icon: "home"},
		{Path: "/courses", Label: "All Courses", Icon: "list"},
	}
)

// MenuBuilder returns the ordered navigation for a role
type MenuBuilder struct {
	fallback Fallback
}

func NewMenuBuilder(fallback Fallback) *MenuBuilder {
	if fallback != FallbackStudent {
		fallback = FallbackMinimal
	}
	return &MenuBuilder{fallback: fallback}
}

// For returns the role's entries followed by the common entries. The slice is a fresh copy.
func (b *MenuBuilder) For(role models.UserRole) []MenuItem {
	var entries []MenuItem
	switch role {
	case models.RoleAdmin:
		entries = adminMenu
	case models.RoleTeacher:
		entries = teacherMenu
	case models.RoleStudent:
		entries = studentMenu
	default: // RoleUnknown
		entries = b.unknown()
	}

	out := make([]MenuItem, 0, len(entries)+len(commonMenu))
	out = append(out, entries...)
	return append(out, commonMenu...)
}

func (b *MenuBuilder) unknown() []MenuItem {
	if b.fallback == FallbackStudent {
		return studentMenu
	}
	return unknownMenu
}

// MenuFor uses the minimal fallback
func MenuFor(role models.UserRole) []MenuItem {
	return NewMenuBuilder(FallbackMinimal).For(role)
}
