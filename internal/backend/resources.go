package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/learnio/learnio/internal/models"
)

// pageSize is the largest page the backend serves
const pageSize = 500

type (
	Users       = models.ListResponse[*models.User]
	Courses     = models.ListResponse[*models.Course]
	Enrollments = models.ListResponse[*models.Enrollment]
	Payments    = models.ListResponse[*models.Payment]
)

// CourseQuery narrows a course listing
type CourseQuery struct {
	Status   string
	Teacher  string
	Category string
	Search   string
}

func (q CourseQuery) values() url.Values {
	v := url.Values{}
	for key, val := range map[string]string{"status": q.Status, "teacher": q.Teacher, "category": q.Category, "q": q.Search} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v
}

// listAll walks the collection at path page by page until it holds Total items
func listAll[T any](ctx context.Context, c *Client, token, path string, query url.Values) (*models.ListResponse[T], error) {
	out := &models.ListResponse[T]{Items: []T{}}
	for {
		q := url.Values{}
		for key, vals := range query {
			q[key] = vals
		}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(len(out.Items)))

		var page models.ListResponse[T]
		if err := c.do(ctx, token, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, err
		}
		out.Items = append(out.Items, page.Items...)
		out.Total = page.Total

		if int64(len(out.Items)) >= page.Total {
			return out, nil
		}
		if len(page.Items) == 0 {
			return nil, fmt.Errorf("GET %s: listing ended at %d of %d items", path, len(out.Items), page.Total)
		}
	}
}

// ===== Users =====

func (c *Client) ListUsers(ctx context.Context, token string) (*Users, error) {
	return listAll[*models.User](ctx, c, token, "/users", nil)
}

func (c *Client) GetUser(ctx context.Context, token, email string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, token, http.MethodGet, emailPath("/users/%s", email), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterUser ensures a user record exists for the token's owner
func (c *Client) RegisterUser(ctx context.Context, token, displayName, photoURL string) (*models.User, error) {
	body := map[string]string{"display_name": displayName, "photo_url": photoURL}
	var out models.User
	if err := c.do(ctx, token, http.MethodPost, "/users", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token, email string, req *models.UpdateProfileRequest) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, token, http.MethodPut, emailPath("/users/%s/profile", email), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRole(ctx context.Context, token, email string, role models.UserRole) (*models.User, error) {
	var out models.User
	body := models.UpdateRoleRequest{Role: role}
	if err := c.do(ctx, token, http.MethodPut, emailPath("/users/%s/role", email), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, token, email string) error {
	return c.do(ctx, token, http.MethodDelete, emailPath("/users/%s", email), nil, nil, nil)
}

// ===== Teachers =====

func (c *Client) ListTeacherApplications(ctx context.Context, token string) (*Users, error) {
	return listAll[*models.User](ctx, c, token, "/teachers", nil)
}

func (c *Client) ApplyTeacher(ctx context.Context, token string, req *models.TeacherApplicationRequest) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, token, http.MethodPost, "/teachers", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptTeacher(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/teachers/accept/%d", id), nil, nil, nil)
}

func (c *Client) RejectTeacher(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/teachers/reject/%d", id), nil, nil, nil)
}

// ===== Courses =====

func (c *Client) ListCourses(ctx context.Context, token string, q CourseQuery) (*Courses, error) {
	return listAll[*models.Course](ctx, c, token, "/courses", q.values())
}

func (c *Client) GetCourse(ctx context.Context, token string, id uint) (*models.Course, error) {
	var out models.Course
	if err := c.do(ctx, token, http.MethodGet, idPath("/courses/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateCourse(ctx context.Context, token string, req *models.CreateCourseRequest) (*models.Course, error) {
	var out models.Course
	if err := c.do(ctx, token, http.MethodPost, "/courses", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptCourse(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/courses/accept/%d", id), nil, nil, nil)
}

func (c *Client) RejectCourse(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/courses/reject/%d", id), nil, nil, nil)
}

// ===== Enrollments =====

// ListEnrollments lists enrollments in scope "mine", "teaching" or "all"
func (c *Client) ListEnrollments(ctx context.Context, token, scope string) (*Enrollments, error) {
	return listAll[*models.Enrollment](ctx, c, token, "/enrollments", url.Values{"scope": {scope}})
}

func (c *Client) RequestEnrollment(ctx context.Context, token string, courseID uint) (*models.Enrollment, error) {
	var out models.Enrollment
	body := models.CreateEnrollmentRequest{CourseID: courseID}
	if err := c.do(ctx, token, http.MethodPost, "/enrollments", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptEnrollment(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/enrollments/accept/%d", id), nil, nil, nil)
}

func (c *Client) RejectEnrollment(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodPut, idPath("/enrollments/reject/%d", id), nil, nil, nil)
}

// ===== Payments =====

func (c *Client) CreatePaymentIntent(ctx context.Context, token string, enrollmentID uint) (*models.PaymentIntentResponse, error) {
	var out models.PaymentIntentResponse
	body := models.CreatePaymentIntentRequest{EnrollmentID: enrollmentID}
	if err := c.do(ctx, token, http.MethodPost, "/payments/intent", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, token string, req *models.CreatePaymentRequest) (*models.Payment, error) {
	var out models.Payment
	if err := c.do(ctx, token, http.MethodPost, "/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPayments(ctx context.Context, token string) (*Payments, error) {
	return listAll[*models.Payment](ctx, c, token, "/payments", nil)
}

func (c *Client) DeletePayment(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodDelete, idPath("/payments/%d", id), nil, nil, nil)
}

// ExportReport streams the admin workbook into w and returns its file name
func (c *Client) ExportReport(ctx context.Context, token string, w io.Writer) (string, error) {
	req := c.request(ctx, token).
		SetHeader("Accept", "*/*").
		SetDoNotParseResponse(true)

	resp, err := c.execute(ctx, req, http.MethodGet, "/payments/export")
	if err != nil {
		return "", err
	}
	body := resp.RawBody()
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}

	filename := "learnio-report.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header().Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, nil
}
