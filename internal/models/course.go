package models

import "time"

type CourseStatus string

const (
	CourseStatusPending  CourseStatus = "pending"
	CourseStatusActive   CourseStatus = "active"
	CourseStatusRejected CourseStatus = "rejected"
)

// CourseCategories are the categories a course or teacher application may use
var CourseCategories = []string{
	"web-development",
	"mobile-development",
	"data-science",
	"design",
	"marketing",
	"business",
	"photography",
	"music",
}

type Course struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	Title         string       `json:"title" gorm:"not null;size:200"`
	Description   string       `json:"description" gorm:"type:text"`
	ImageURL      string       `json:"image_url" gorm:"size:500"`
	Price         float64      `json:"price" gorm:"type:numeric(10,2);not null"`
	Category      string       `json:"category" gorm:"size:100;index"`
	TeacherEmail  string       `json:"teacher_email" gorm:"not null;size:255;index"`
	TeacherName   string       `json:"teacher_name" gorm:"size:100"`
	StudentsCount int          `json:"students_count" gorm:"not null;default:0"`
	Status        CourseStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

// IsTerminal reports whether no further status change is allowed
func (c *Course) IsTerminal() bool {
	return c.Status != CourseStatusPending
}
