// Package apiclient talks to the admin API of the monitored backend.
//
// Every request carries a JSON body (when it has one) with
// "Content-Type: application/json; charset=UTF-8". Responses use the
// backend's envelope {"code", "message", "data"}; a code other than 200 is
// reported as *[APIError] even when the HTTP status is 2xx.
//
// Reads are retried on network failures and 5xx responses with exponential
// backoff. Writes are sent exactly once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	contentType     = "application/json; charset=UTF-8"
	defaultPageSize = 10
	defaultMaxTries = 4
	maxBodySize     = 4 << 20 // 4MB
)

// APIError is returned for non-2xx responses and for envelopes whose code is
// not 200.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	prefix := e.Method + " " + e.Path
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return prefix + ": authentication required, log in again"
	case e.Code != 0 && e.Message != "":
		return fmt.Sprintf("%s: api error (code %d): %s", prefix, e.Code, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("%s: api request failed (code %d)", prefix, e.Code)
	}
	return fmt.Sprintf("%s: api request failed: HTTP status %d", prefix, e.StatusCode)
}

// IsUnauthorized reports whether err is an [APIError] with status 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is an admin API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxTries bounds the number of attempts for a read. One disables retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff replaces the retry schedule. f is called once per request.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		if f != nil {
			c.newBackOff = f
		}
	}
}

// New creates a [Client] for baseURL. Requests go through rt, which is
// normally a [Transport] wrapping the console's pooled transport; nil means
// http.DefaultTransport.
func New(baseURL string, rt http.RoundTripper, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	if rt == nil {
		rt = http.DefaultTransport
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: rt},
		logger:     slog.Default(),
		maxTries:   defaultMaxTries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges admin credentials for an access token.
func (c *Client) Login(ctx context.Context, loginID, password string) (LoginResult, error) {
	var res LoginResult
	if loginID == "" || password == "" {
		return res, errors.New("login id and password are required")
	}
	body := map[string]string{"loginId": loginID, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v2/admin/login", body, &res); err != nil {
		return res, err
	}
	if res.AccessToken == "" {
		return res, errors.New("login response did not contain an access token")
	}
	return res, nil
}

// Feedbacks returns one page of user feedback. Pages are zero-based.
func (c *Client) Feedbacks(ctx context.Context, page, size int) (FeedbackPage, error) {
	var res FeedbackPage
	err := c.do(ctx, http.MethodGet, "/api/v2/admin/feedbacks?"+pageQuery(page, size), nil, &res)
	return res, err
}

// Reports returns one page of comment reports.
func (c *Client) Reports(ctx context.Context, page, size int) (ReportPage, error) {
	var res ReportPage
	err := c.do(ctx, http.MethodGet, "/api/v2/admin/reports?"+pageQuery(page, size), nil, &res)
	return res, err
}

// Categories lists the notice categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var res []Category
	err := c.do(ctx, http.MethodGet, "/api/v2/notices/categories", nil, &res)
	return res, err
}

// SendTestNotice pushes a notice to the development audience.
func (c *Client) SendTestNotice(ctx context.Context, category, subject, articleID string) error {
	if category == "" || subject == "" || articleID == "" {
		return errors.New("category, subject and article id are required")
	}
	body := map[string]string{"category": category, "subject": subject, "articleId": articleID}
	return c.do(ctx, http.MethodPost, "/api/v2/admin/notices/dev", body, nil)
}

// SendProdNotice pushes a notice to every user. The backend checks
// adminPassword again before sending.
func (c *Client) SendProdNotice(ctx context.Context, title, body, link, adminPassword string) error {
	if title == "" || body == "" || adminPassword == "" {
		return errors.New("title, body and admin password are required")
	}
	payload := map[string]string{"title": title, "body": body, "url": link, "adminPassword": adminPassword}
	return c.do(ctx, http.MethodPost, "/api/v2/admin/notices/prod", payload, nil)
}

// ScheduledAlerts returns one page of scheduled alerts.
func (c *Client) ScheduledAlerts(ctx context.Context, page, size int) (AlertPage, error) {
	var res AlertPage
	err := c.do(ctx, http.MethodGet, "/api/v2/admin/alerts?"+pageQuery(page, size), nil, &res)
	return res, err
}

// CreateScheduledAlert schedules an alert. wakeTime is normalized with
// [NormalizeAlertTime] before it is sent.
func (c *Client) CreateScheduledAlert(ctx context.Context, title, content, wakeTime string) error {
	if title == "" || content == "" || strings.TrimSpace(wakeTime) == "" {
		return errors.New("title, content and wake time are required")
	}
	body := map[string]string{
		"title":     title,
		"content":   content,
		"alertTime": NormalizeAlertTime(wakeTime),
	}
	return c.do(ctx, http.MethodPost, "/api/v2/admin/alerts", body, nil)
}

// CancelScheduledAlert cancels a pending alert.
func (c *Client) CancelScheduledAlert(ctx context.Context, id ID) error {
	if id == "" {
		return errors.New("alert id is required")
	}
	return c.do(ctx, http.MethodDelete, "/api/v2/admin/alerts/"+url.PathEscape(string(id)), nil, nil)
}

var (
	minutePrecision = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)
	fractionalPart  = regexp.MustCompile(`\.\d{3}.*`)
)

// NormalizeAlertTime converts a local date-time such as "2025-03-01T09:30" or
// "2025-03-01T09:30:00.000Z" to the "yyyy-MM-dd HH:mm:ss" form the backend
// expects. Blank input is returned unchanged.
func NormalizeAlertTime(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.Replace(s, "T", " ", 1)
	if minutePrecision.MatchString(s) {
		s += ":00"
	}
	s = fractionalPart.ReplaceAllString(s, "")
	return strings.TrimSuffix(s, "Z")
}

func pageQuery(page, size int) string {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q.Encode()
}

// do sends one API call. GETs are retried; everything else is attempted once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if method != http.MethodGet {
		_, err := c.attempt(ctx, method, path, payload, out)
		return err
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		retryable, err := c.attempt(ctx, method, path, payload, out)
		if err != nil && !retryable {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("api request failed, retrying",
				"path", path,
				"error", err.Error(),
				"retry_in_ms", next.Milliseconds(),
			)
		}),
	)
	return err
}

// attempt performs a single request and reports whether a failure is worth
// retrying.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) (retryable bool, err error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return true, fmt.Errorf("%s %s: failed to read response body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		}
		return resp.StatusCode >= 500, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return false, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Message,
		}
	}

	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("%s %s: failed to decode response data: %w", method, path, err)
	}
	return false, nil
}
