package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/learnio/learnio/internal/models"
	"github.com/learnio/learnio/internal/repositories"
)

// Report sheet names
const (
	SheetUsers    = "Users"
	SheetCourses  = "Courses"
	SheetPayments = "Payments"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

func (s *exportService) WriteReport(ctx context.Context, actor *models.User, w io.Writer) error {
	if err := requireRole(actor, "report", "export", models.RoleAdmin); err != nil {
		return err
	}

	users, _, err := s.repo.User().List(ctx, repositories.UserFilters{})
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	courses, _, err := s.repo.Course().List(ctx, repositories.CourseFilters{SortBy: "created_at", SortOrder: "asc"})
	if err != nil {
		return fmt.Errorf("failed to load courses: %w", err)
	}
	payments, _, err := s.repo.Payment().List(ctx, repositories.PaymentFilters{})
	if err != nil {
		return fmt.Errorf("failed to load payments: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	userRows := make([][]interface{}, 0, len(users))
	for _, u := range users {
		userRows = append(userRows, []interface{}{u.ID, u.Email, u.DisplayName, string(u.Role), string(u.TeacherApplicationStatus), u.CreatedAt.Format(time.RFC3339)})
	}
	courseRows := make([][]interface{}, 0, len(courses))
	for _, c := range courses {
		courseRows = append(courseRows, []interface{}{c.ID, c.Title, c.Category, c.TeacherEmail, c.Price, c.StudentsCount, string(c.Status)})
	}
	paymentRows := make([][]interface{}, 0, len(payments))
	for _, p := range payments {
		paymentRows = append(paymentRows, []interface{}{p.ID, p.EnrollmentID, p.CourseID, p.UserEmail, p.Amount, p.Currency, p.TransactionID, p.CreatedAt.Format(time.RFC3339)})
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]interface{}
	}{
		{SheetUsers, []string{"ID", "Email", "Name", "Role", "Teacher Application", "Created"}, userRows},
		{SheetCourses, []string{"ID", "Title", "Category", "Teacher", "Price", "Students", "Status"}, courseRows},
		{SheetPayments, []string{"ID", "Enrollment", "Course", "Student", "Amount", "Currency", "Transaction", "Paid At"}, paymentRows},
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet.name, err)
		}

		if err := writeSheet(f, sheet.name, sheet.headers, sheet.rows); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Report exported",
		"by", actor.Email,
		"users", len(users),
		"courses", len(courses),
		"payments", len(payments))
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header %s: %w", h, err)
		}
	}

	for r, row := range rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
