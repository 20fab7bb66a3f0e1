package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/config"
	"github.com/civisight/portal/pkg/health"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/civisight/portal/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	server      *Server
	auth        *auth.Service
	accounts    *mockAccounts
	counties    *mockCounties
	tasks       *mockTasks
	obligations *mockObligations
	forms       *mockForms
	reminders   *mockReminders
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		auth:        auth.NewService(auth.Config{JWTSecret: "test-secret"}, nil),
		accounts:    new(mockAccounts),
		counties:    new(mockCounties),
		tasks:       new(mockTasks),
		obligations: new(mockObligations),
		forms:       new(mockForms),
		reminders:   new(mockReminders),
	}
	f.server = NewServer(config.APIConfig{}, f.auth, Services{
		Accounts:    f.accounts,
		Counties:    f.counties,
		Tasks:       f.tasks,
		Obligations: f.obligations,
		Forms:       f.forms,
		Reminders:   f.reminders,
	}, opts)
	return f
}

func (f *fixture) token(t *testing.T, p *auth.Principal) string {
	t.Helper()
	token, _, err := f.auth.GenerateJWT(context.Background(), p)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) json(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, token)
}

var (
	stateUser  = &auth.Principal{ID: "s1", Email: "analyst@state.gov", Role: models.RoleState}
	countyUser = &auth.Principal{ID: "c-user", Email: "clerk@lake.gov", Role: models.RoleCounty, CountyID: "lake"}
)

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthEndpoints(t *testing.T) {
	checker := health.NewHealthChecker(nil, nil)
	checker.RegisterCheck(health.NewFuncCheck("database", func(context.Context) error { return errors.New("down") }))
	metrics := observability.NewPrometheusMetricsClient("portal_test", nil)
	f := newFixture(t, Options{Health: checker, MetricsHandler: metrics.Handler(), Metrics: metrics})

	w := f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")

	w = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthGate(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties", nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties", nil), "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	f.counties.AssertNotCalled(t, "List", mock.Anything)
}

func TestLoginAndSignup(t *testing.T) {
	f := newFixture(t, Options{})
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	f.accounts.On("Login", mock.Anything, "clerk@lake.gov", "secret-pass").
		Return(&auth.Session{Token: "tok", User: countyUser, ExpiresAt: expires}, nil)
	f.accounts.On("Login", mock.Anything, "clerk@lake.gov", "wrong").Return(nil, auth.ErrInvalidCredentials)
	f.accounts.On("Signup", mock.Anything, mock.Anything).Return(nil, services.ErrEmailTaken)

	w := f.json(http.MethodPost, "/api/v1/auth/login", `{"email":"clerk@lake.gov","password":"secret-pass"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sess auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, "lake", sess.User.CountyID)
	assert.True(t, expires.Equal(sess.ExpiresAt))

	w = f.json(http.MethodPost, "/api/v1/auth/login", `{"email":"clerk@lake.gov","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid credentials", errorOf(t, w))

	w = f.json(http.MethodPost, "/api/v1/auth/login", `{"email":""}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.json(http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ada","email":"ada@lake.gov","password":"long-enough","role":"state"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.json(http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ada","email":"ada@lake.gov","password":"long-enough","role":"admin"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeAndUsers(t *testing.T) {
	f := newFixture(t, Options{})
	f.accounts.On("Me", mock.Anything, "c-user").Return(&models.User{ID: "c-user", PasswordHash: "hash"}, nil)
	f.accounts.On("ListUsers", mock.Anything, []models.Role{models.RoleCounty}).Return(nil, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), f.token(t, countyUser))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hash")

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/users?role=county", nil), f.token(t, stateUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t, Options{})
	body := `{"title":"Audit","deadline":"2024-05-01T00:00:00Z","assignedTo":["clerk@lake.gov"],"countyId":"lake"}`

	f.tasks.On("Create", mock.Anything, mock.MatchedBy(func(d models.TaskDraft) bool {
		return d.Title == "Audit" && d.CountyID == "lake"
	}), mock.MatchedBy(func(p *auth.Principal) bool { return p.ID == "s1" })).
		Return(&models.Task{ID: "t1", Title: "Audit", CountyID: "lake", Status: models.TaskStatusPending}, nil).Once()

	w := f.json(http.MethodPost, "/api/v1/tasks", body, f.token(t, countyUser))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.json(http.MethodPost, "/api/v1/tasks", `{"title":"Audit","countyId":"lake"}`, f.token(t, stateUser))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.json(http.MethodPost, "/api/v1/tasks", body, f.token(t, stateUser))
	require.Equal(t, http.StatusCreated, w.Code)
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, "t1", task.ID)

	f.tasks.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, services.ValidationError{Field: "countyId", Message: "unknown county lake"})
	w = f.json(http.MethodPost, "/api/v1/tasks", body, f.token(t, stateUser))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorOf(t, w), "unknown county")
}

func TestTaskStatusAndDelete(t *testing.T) {
	f := newFixture(t, Options{})
	f.tasks.On("UpdateStatus", mock.Anything, "t1", models.TaskStatusCompleted, mock.Anything).
		Return(&models.Task{ID: "t1", Status: models.TaskStatusCompleted}, nil)
	f.tasks.On("UpdateStatus", mock.Anything, "t2", models.TaskStatusCompleted, mock.Anything).
		Return(nil, services.ErrForbidden)
	f.tasks.On("Delete", mock.Anything, "t1").Return(nil)
	f.tasks.On("Delete", mock.Anything, "gone").Return(repository.ErrNotFound)
	f.tasks.On("ListMine", mock.Anything, mock.Anything).Return([]*models.Task{{ID: "t1"}}, nil)

	w := f.json(http.MethodPatch, "/api/v1/tasks/t1/status", `{"status":"completed"}`, f.token(t, countyUser))
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.json(http.MethodPatch, "/api/v1/tasks/t2/status", `{"status":"completed"}`, f.token(t, countyUser))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/t1", nil), f.token(t, stateUser))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/gone", nil), f.token(t, stateUser))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", errorOf(t, w))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/mine", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"t1"`)
}

func TestCountyRoutes(t *testing.T) {
	f := newFixture(t, Options{})
	f.counties.On("List", mock.Anything).Return(nil, nil)
	f.tasks.On("ListByCounty", mock.Anything, "lake").Return([]*models.Task{{ID: "t1", CountyID: "lake"}}, nil)
	f.obligations.On("ListByCounty", mock.Anything, "lake").Return(nil, errors.New("db down"))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties", nil), f.token(t, stateUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties/lake/tasks", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties/pine/tasks", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/counties/lake/obligations", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorOf(t, w))

	f.counties.On("UpdateProfile", mock.Anything, mock.MatchedBy(func(p *models.CountyProfile) bool {
		return p.CountyID == "lake" && p.Name == "Lake County"
	})).Return(&models.CountyProfile{CountyID: "lake", Name: "Lake County"}, nil)
	w = f.json(http.MethodPut, "/api/v1/counties/lake/profile", `{"name":"Lake County","countyId":"pine"}`, f.token(t, countyUser))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFormUploadAndDownload(t *testing.T) {
	f := newFixture(t, Options{})
	f.forms.On("Upload", mock.Anything, "lake", "permit.pdf", "%PDF-1.4", "c-user").
		Return(&models.Form{ID: "f1", CountyID: "lake", Name: "permit.pdf", FileType: models.FileTypePDF}, nil)
	f.forms.On("Download", mock.Anything, "f1").
		Return(&models.Form{ID: "f1", CountyID: "lake", Name: "permit.pdf", FileType: models.FileTypePDF}, []byte("%PDF-1.4"), nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "permit.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/counties/lake/forms", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := f.do(req, f.token(t, countyUser))
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/counties/lake/forms", strings.NewReader(""))
	w = f.do(req, f.token(t, countyUser))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/forms/f1/download", nil), f.token(t, countyUser))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="permit.pdf"`)
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	other := &auth.Principal{ID: "p-user", Role: models.RoleCounty, CountyID: "pine"}
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/forms/f1/download", nil), f.token(t, other))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReminderRoutes(t *testing.T) {
	f := newFixture(t, Options{})
	f.reminders.On("SendNow", mock.Anything, "t1").Return([]*models.Reminder{{ID: "r1", Status: models.ReminderQueued}}, nil)
	f.reminders.On("ListByTask", mock.Anything, "t1").Return(nil, nil)

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/tasks/t1/reminders", nil), f.token(t, stateUser))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"r1"`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1/reminders", nil), f.token(t, countyUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		services.ValidationError{Field: "title"}: http.StatusBadRequest,
		repository.ErrValidation:                 http.StatusBadRequest,
		repository.ErrNotFound:                   http.StatusNotFound,
		repository.ErrDuplicate:                  http.StatusConflict,
		services.ErrEmailTaken:                   http.StatusConflict,
		auth.ErrInvalidCredentials:               http.StatusUnauthorized,
		services.ErrForbidden:                    http.StatusForbidden,
		errors.New("boom"):                       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
