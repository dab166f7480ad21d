package access

import (
	"fmt"
	"slices"

	"github.com/learnio/learnio/internal/models"
)

// Action is something a role may be offered on its dashboard
type Action string

const (
	ActionReviewTeachers    Action = "review_teachers"
	ActionManageUsers       Action = "manage_users"
	ActionReviewCourses     Action = "review_courses"
	ActionViewAllPayments   Action = "view_all_payments"
	ActionExportReports     Action = "export_reports"
	ActionSubmitCourse      Action = "submit_course"
	ActionReviewEnrollments Action = "review_enrollments"
	ActionEnroll            Action = "enroll"
	ActionPay               Action = "pay"
	ActionApplyTeacher      Action = "apply_teacher"
	ActionEditProfile       Action = "edit_profile"
)

// Permitted lists the actions offered to a role, in dashboard order
func Permitted(role models.UserRole) []Action {
	switch role {
	case models.RoleAdmin:
		return []Action{ActionReviewTeachers, ActionManageUsers, ActionReviewCourses, ActionViewAllPayments, ActionExportReports, ActionEditProfile}
	case models.RoleTeacher:
		return []Action{ActionSubmitCourse, ActionReviewEnrollments, ActionEditProfile}
	case models.RoleStudent:
		return []Action{ActionEnroll, ActionPay, ActionApplyTeacher, ActionEditProfile}
	default:
		return []Action{ActionEditProfile}
	}
}

func Can(role models.UserRole, action Action) bool {
	return slices.Contains(Permitted(role), action)
}

// Welcome is the dashboard greeting
func Welcome(role models.UserRole, name string) string {
	if name == "" {
		name = "there"
	}
	switch role {
	case models.RoleAdmin:
		return fmt.Sprintf("Welcome back, %s. Review pending teachers and courses and keep the marketplace healthy.", name)
	case models.RoleTeacher:
		return fmt.Sprintf("Welcome back, %s. Publish a new course or answer your enrollment requests.", name)
	case models.RoleStudent:
		return fmt.Sprintf("Welcome back, %s. Pick up where you left off or find your next course.", name)
	default:
		return fmt.Sprintf("Welcome, %s. We are still setting up your account.", name)
	}
}
