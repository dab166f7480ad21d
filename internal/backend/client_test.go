package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnio/learnio/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/", srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListUsersSendsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users", r.URL.Path)
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, Users{
			Items: []*models.User{{Email: "a@x.com", Role: models.RoleAdmin}},
			Total: 1,
		})
	})

	users, err := client.ListUsers(context.Background(), "jwt-1")
	require.NoError(t, err)
	require.Len(t, users.Items, 1)
	assert.Equal(t, models.RoleAdmin, users.Items[0].Role)
}

func TestClient_ListUsersFollowsPages(t *testing.T) {
	const total = 1203
	var requests atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		page := Users{Items: []*models.User{}, Total: total}
		for i := offset; i < total && i < offset+limit; i++ {
			page.Items = append(page.Items, &models.User{Email: "u" + strconv.Itoa(i) + "@x.com"})
		}
		writeJSON(w, http.StatusOK, page)
	})

	users, err := client.ListUsers(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, users.Items, total)
	assert.Equal(t, int64(total), users.Total)
	assert.Equal(t, "u500@x.com", users.Items[500].Email)
	assert.Equal(t, "u1202@x.com", users.Items[total-1].Email)
	assert.Equal(t, int32(3), requests.Load())
}

func TestClient_ListStopsOnShortCollection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			writeJSON(w, http.StatusOK, Payments{Items: []*models.Payment{{ID: 1}}, Total: 4})
			return
		}
		writeJSON(w, http.StatusOK, Payments{Items: []*models.Payment{}, Total: 4})
	})

	_, err := client.ListPayments(context.Background(), "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4")
}

func TestClient_Mutations(t *testing.T) {
	var calls []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.EscapedPath())
		if r.Method == http.MethodPut && r.URL.Path == "/api/v1/users/a@x.com/role" {
			var body models.UpdateRoleRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, models.RoleTeacher, body.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	require.NoError(t, client.AcceptCourse(ctx, "t", 5))
	require.NoError(t, client.RejectTeacher(ctx, "t", 7))
	require.NoError(t, client.AcceptEnrollment(ctx, "t", 9))
	require.NoError(t, client.DeletePayment(ctx, "t", 3))
	_, err := client.UpdateRole(ctx, "t", "A@x.com", models.RoleTeacher)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"PUT /api/v1/courses/accept/5",
		"PUT /api/v1/teachers/reject/7",
		"PUT /api/v1/enrollments/accept/9",
		"DELETE /api/v1/payments/3",
		"PUT /api/v1/users/a@x.com/role",
	}, calls)
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{
			Message:          "course has already been reviewed",
			ValidationErrors: []models.ValidationErrorResponse{{Field: "status", Message: "terminal"}},
		})
	})

	err := client.AcceptCourse(context.Background(), "t", 5)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Contains(t, err.Error(), "already been reviewed")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.ValidationErrors, 1)

	assert.Equal(t, 0, StatusCode(assert.AnError))
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetCourse(context.Background(), "", 1)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestClient_ListCoursesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "pending", q.Get("status"))
		assert.Equal(t, "t@x.com", q.Get("teacher"))
		assert.False(t, q.Has("category"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":1,"status":"pending"}],"total":1}`))
	})

	courses, err := client.ListCourses(context.Background(), "", CourseQuery{Status: "pending", Teacher: "t@x.com"})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPending, courses.Items[0].Status)
}

func TestClient_ExportReport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/export", r.URL.Path)
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="learnio-report-20261017.xlsx"`)
		_, _ = w.Write([]byte("PK-workbook"))
	})

	var buf bytes.Buffer
	name, err := client.ExportReport(context.Background(), "t", &buf)
	require.NoError(t, err)
	assert.Equal(t, "learnio-report-20261017.xlsx", name)
	assert.Equal(t, "PK-workbook", buf.String())
}
