package models

import (
	"strings"
	"time"
)

// UserRole is the closed set of roles a user record can carry.
// RoleUnknown is never stored; it stands for "no resolved role".
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
	RoleUnknown UserRole = "unknown"
)

// Roles lists the storable roles
var Roles = []UserRole{RoleAdmin, RoleTeacher, RoleStudent}

// ParseRole maps a role string to a UserRole; anything unrecognised is RoleUnknown
func ParseRole(s string) UserRole {
	switch UserRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleTeacher:
		return RoleTeacher
	case RoleStudent:
		return RoleStudent
	default:
		return RoleUnknown
	}
}

// Valid reports whether r may be stored on a user record
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

func (r UserRole) String() string { return string(r) }

type TeacherApplicationStatus string

const (
	TeacherApplicationNone     TeacherApplicationStatus = "none"
	TeacherApplicationPending  TeacherApplicationStatus = "pending"
	TeacherApplicationAccepted TeacherApplicationStatus = "accepted"
	TeacherApplicationRejected TeacherApplicationStatus = "rejected"
)

type User struct {
	ID          uint     `json:"id" gorm:"primaryKey"`
	Email       string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	DisplayName string   `json:"display_name" gorm:"not null;size:100"`
	PhotoURL    string   `json:"photo_url" gorm:"size:500"`
	Role        UserRole `json:"role" gorm:"type:varchar(20);not null;default:'student';index"`

	// Teacher application
	TeacherApplicationStatus TeacherApplicationStatus `json:"teacher_application_status" gorm:"type:varchar(20);not null;default:'none';index"`
	TeacherCategory          *string                  `json:"teacher_category,omitempty" gorm:"size:100"`
	TeacherExperience        *string                  `json:"teacher_experience,omitempty" gorm:"size:50"`
	TeacherTitle             *string                  `json:"teacher_title,omitempty" gorm:"size:200"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// NormalizeEmail is the canonical form used for lookups and storage
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
