package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/learnio/learnio/internal/models"
)

// APIError is a non-2xx answer from the REST backend
type APIError struct {
	StatusCode       int
	Message          string
	ValidationErrors []models.ValidationErrorResponse
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the backend status from err, or 0 when err did not come from the backend
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client calls the REST backend on behalf of a signed-in session
type Client struct {
	rest   *resty.Client
	logger *slog.Logger
}

// NewClient builds a backend client. A nil httpClient gets a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	var rest *resty.Client
	if httpClient == nil {
		rest = resty.New().SetTimeout(10 * time.Second)
	} else {
		rest = resty.NewWithClient(httpClient)
	}
	rest.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")

	return &Client{
		rest:   rest,
		logger: logger,
	}
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.rest.R().
		SetContext(ctx).
		SetError(&models.ErrorResponse{})
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// execute sends req and turns a 4xx/5xx answer into an *APIError
func (c *Client) execute(ctx context.Context, req *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.DebugContext(ctx, "Backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"duration", resp.Time())

	if resp.IsError() {
		// streamed requests leave the body open
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
		return nil, apiError(resp)
	}
	return resp, nil
}

func apiError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*models.ErrorResponse); ok && body != nil {
		apiErr.Message = body.Message
		apiErr.ValidationErrors = body.ValidationErrors
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body, out interface{}) error {
	req := c.request(ctx, token)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	_, err := c.execute(ctx, req, method, path)
	return err
}

func idPath(format string, id uint) string {
	return fmt.Sprintf(format, id)
}

func emailPath(format, email string) string {
	return fmt.Sprintf(format, url.PathEscape(models.NormalizeEmail(email)))
}
