// Package remote talks to the portal backend on behalf of the client side
// coordinator. Everything coming back is normalized before it reaches
// application state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/resilience"
	"github.com/pkg/errors"
)

// ErrNoSession is returned when a call is attempted while logged out.
var ErrNoSession = errors.New("no active session")

// Store is the backend the coordinator writes through.
type Store interface {
	CreateTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, countyID string) ([]*models.Task, error)
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying could help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config configures HTTPStore.
type Config struct {
	BaseURL        string                          `mapstructure:"base_url"`
	Timeout        time.Duration                   `mapstructure:"timeout"`
	Retry          resilience.RetryConfig          `mapstructure:"retry"`
	CircuitBreaker resilience.CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// DefaultConfig targets a backend on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8080/api/v1",
		Timeout:        15 * time.Second,
		Retry:          resilience.DefaultRetryConfig(),
		CircuitBreaker: resilience.DefaultCircuitBreakerConfig(),
	}
}

// HTTPStore implements Store against the portal REST API.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
	session    auth.SessionSource
	breakers   *resilience.CircuitBreakerManager
	retry      resilience.RetryConfig
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewHTTPStore creates an HTTPStore. session may be a MemorySession that
// Login fills in.
func NewHTTPStore(cfg Config, session auth.SessionSource, logger observability.Logger, metrics observability.MetricsClient) *HTTPStore {
	if logger == nil {
		logger = observability.NewLogger("remote")
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	retry := cfg.Retry
	retry.RetryIf = isTransient

	return &HTTPStore{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		session:    session,
		breakers:   resilience.NewCircuitBreakerManager(cfg.CircuitBreaker, logger, metrics),
		retry:      retry,
		logger:     logger,
		metrics:    metrics,
	}
}

// CreateTask posts draft and returns the normalized stored task. Creates are
// never retried because the backend is not idempotent for them.
func (s *HTTPStore) CreateTask(ctx context.Context, draft models.TaskDraft) (*models.Task, error) {
	body, err := s.send(ctx, "tasks", http.MethodPost, "/tasks", draft)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRecord(body)
	if err != nil {
		return nil, err
	}
	return NormalizeTask(raw)
}

// DeleteTask deletes the task. A 404 counts as success since the record is
// gone either way.
func (s *HTTPStore) DeleteTask(ctx context.Context, id string) error {
	err := resilience.Retry(ctx, s.retry, func() error {
		_, err := s.send(ctx, "tasks", http.MethodDelete, "/tasks/"+url.PathEscape(id), nil)
		return err
	})
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// ListTasks fetches a county's tasks. Records failing normalization are
// dropped with a warning.
func (s *HTTPStore) ListTasks(ctx context.Context, countyID string) ([]*models.Task, error) {
	var body []byte
	err := resilience.Retry(ctx, s.retry, func() error {
		var err error
		body, err = s.send(ctx, "tasks", http.MethodGet, "/counties/"+url.PathEscape(countyID)+"/tasks", nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, errors.Wrap(err, "failed to decode task list")
	}
	tasks := make([]*models.Task, 0, len(records))
	for i, rec := range records {
		raw, err := decodeRecord(rec)
		if err == nil {
			var t *models.Task
			if t, err = NormalizeTask(raw); err == nil {
				tasks = append(tasks, t)
				continue
			}
		}
		s.logger.Warn("Dropping invalid task record", map[string]interface{}{
			"county_id": countyID,
			"index":     i,
			"error":     err.Error(),
		})
	}
	return tasks, nil
}

// ListCounties fetches the county directory.
func (s *HTTPStore) ListCounties(ctx context.Context) ([]*models.County, error) {
	var body []byte
	err := resilience.Retry(ctx, s.retry, func() error {
		var err error
		body, err = s.send(ctx, "counties", http.MethodGet, "/counties", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var counties []*models.County
	if err := json.Unmarshal(body, &counties); err != nil {
		return nil, errors.Wrap(err, "failed to decode counties")
	}
	return counties, nil
}

// Login exchanges credentials for a session. It does not need an existing
// session.
func (s *HTTPStore) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	payload := map[string]string{"email": email, "password": password}
	body, err := s.do(ctx, http.MethodPost, "/auth/login", payload, "")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Token     string          `json:"token"`
		ExpiresAt time.Time       `json:"expiresAt"`
		User      *auth.Principal `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode login response")
	}
	if resp.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	return &auth.Session{Token: resp.Token, User: resp.User, ExpiresAt: resp.ExpiresAt}, nil
}

// send runs an authenticated request through the named breaker. Client
// errors (4xx) do not count against the breaker.
func (s *HTTPStore) send(ctx context.Context, breaker, method, path string, payload interface{}) ([]byte, error) {
	sess, ok := s.session.Current()
	if !ok {
		return nil, ErrNoSession
	}

	var clientErr error
	out, err := s.breakers.Execute(breaker, func() (interface{}, error) {
		body, err := s.do(ctx, method, path, payload, sess.Token)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			clientErr = err
			return nil, nil
		}
		return body, err
	})
	if clientErr != nil {
		return nil, clientErr
	}
	if err != nil {
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, payload interface{}, token string) ([]byte, error) {
	start := time.Now()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.RecordAPIOperation(method, path, 0, time.Since(start))
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()
	s.metrics.RecordAPIOperation(method, path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errResp)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return body, nil
}

// isTransient decides retries for idempotent calls: transport failures,
// 5xx and 429 are retried; everything else is final.
func isTransient(err error) bool {
	if errors.Is(err, ErrNoSession) || errors.Is(err, context.Canceled) {
		return false
	}
	if resilience.IsOpen(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
