package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"deepreport/internal/config"
	"deepreport/internal/database"
	"deepreport/internal/events"
	"deepreport/internal/models"
	"deepreport/internal/research"
	"deepreport/internal/services/admin"
	"deepreport/internal/services/reports"
	"deepreport/internal/services/scheduler"
	"deepreport/internal/services/tracker"
	"deepreport/internal/store"
)

const testSecret = "test-secret"

type fakeSubmitter struct {
	jobID string
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, prompt, systemMessage string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

func (f *fakeSubmitter) Cancel(ctx context.Context, jobID string) error {
	return nil
}

type fakeTracker struct{}

func (fakeTracker) StartTracking(reportID string) (string, error) {
	return "task-" + reportID, nil
}

func (fakeTracker) CancelResearch(ctx context.Context, reportID string) error {
	return tracker.ErrNotTracking
}

func (fakeTracker) ReportProgress(reportID string) (*tracker.TrackingProgress, error) {
	return &tracker.TrackingProgress{ReportID: reportID, Status: tracker.TaskStatusRunning}, nil
}

type fakeGoogle struct {
	mu        sync.Mutex
	exchanged map[string]string
}

func (f *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGoogle) Exchange(ctx context.Context, userID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanged[userID] = code
	return nil
}

func (f *fakeGoogle) IsSignedIn(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.exchanged[userID]
	return ok, nil
}

func (f *fakeGoogle) SignOut(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exchanged, userID)
	return nil
}

type fakeScheduler struct {
	upserted []scheduler.UpsertJobRequest
}

func (f *fakeScheduler) ListJobs() ([]scheduler.JobListResponse, error) {
	return []scheduler.JobListResponse{}, nil
}

func (f *fakeScheduler) UpsertJob(req scheduler.UpsertJobRequest) (string, error) {
	f.upserted = append(f.upserted, req)
	return "job-1", nil
}

func (f *fakeScheduler) DeleteJob(jobID string) error {
	return nil
}

func (f *fakeScheduler) RunJob(jobID string) error {
	return scheduler.ErrJobNotFound
}

type harness struct {
	server    *Server
	handler   http.Handler
	store     store.Store
	submitter *fakeSubmitter
	google    *fakeGoogle
	scheduler *fakeScheduler
	broker    *events.Broker
	user      *models.User
	other     *models.User
	admin     *models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	t.Setenv("DEEPREPORT_JWT_SECRET", testSecret)
	t.Setenv("DEEPREPORT_AUTH", JWTAuthentication)
	cfg, err := config.New()
	require.NoError(t, err)

	ctx := context.Background()
	s := store.NewStore(db)
	h := &harness{
		store:     s,
		submitter: &fakeSubmitter{jobID: "resp_1"},
		google:    &fakeGoogle{exchanged: map[string]string{}},
		scheduler: &fakeScheduler{},
		broker:    events.NewBroker(8),
	}
	t.Cleanup(h.broker.Close)

	h.user, err = s.User().Create(ctx, models.User{ID: "user-1", Email: "user@example.com"})
	require.NoError(t, err)
	h.other, err = s.User().Create(ctx, models.User{ID: "user-2", Email: "other@example.com"})
	require.NoError(t, err)
	h.admin, err = s.User().Create(ctx, models.User{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = s.ReportType().Create(ctx, models.ReportType{Name: "Market Analysis", Prompt: "You analyse markets."})
	require.NoError(t, err)

	authenticator, err := NewAuthenticator(ctx, cfg.Service.Auth, s.User())
	require.NoError(t, err)

	h.server, err = New(cfg, Deps{
		Reports:       reports.NewService(s, h.submitter, fakeTracker{}, nil, nil),
		Admin:         admin.NewService(s),
		Google:        h.google,
		Scheduler:     h.scheduler,
		Events:        h.broker,
		Authenticator: authenticator,
	})
	require.NoError(t, err)
	h.handler = h.server.Router()
	return h
}

func token(t *testing.T, user *models.User, ttl time.Duration) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, user *models.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, user, time.Hour))
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) createReport(t *testing.T, user *models.User) *models.Report {
	t.Helper()
	rec := h.do(t, user, http.MethodPost, "/api/v1/reports", map[string]any{
		"report_name": "Q3 Outlook",
		"client_name": "Acme",
		"report_type": "Market Analysis",
		"transcript":  "We discussed the market.",
		"urls":        []string{"https://acme.example", " "},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	report := decodeBody[models.Report](t, rec)
	return &report
}

func TestRouting(t *testing.T) {
	t.Run("Should serve health and metrics without a token", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, nil, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(t, nil, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Should reject requests without a valid token", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, nil, http.MethodGet, "/api/v1/me", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, h.user, -time.Minute))
		rec = httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Should return the caller", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.user, http.MethodGet, "/api/v1/me", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decodeBody[models.User](t, rec)
		assert.Equal(t, h.user.ID, me.ID)
	})
}

func TestReportRoutes(t *testing.T) {
	t.Run("Should create, list and read a report", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)
		assert.Equal(t, models.ReportStatusDraft, report.Status)
		assert.Equal(t, []string{"https://acme.example"}, []string(report.URLs))

		rec := h.do(t, h.user, http.MethodGet, "/api/v1/reports", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]models.Report](t, rec), 1)

		rec = h.do(t, h.user, http.MethodGet, "/api/v1/reports/"+report.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Should hide other users' reports", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		rec := h.do(t, h.other, http.MethodGet, "/api/v1/reports/"+report.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = h.do(t, h.admin, http.MethodGet, "/api/v1/reports/"+report.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/reports/"+report.ID+"/research", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Should map validation failures to bad request", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.user, http.MethodPost, "/api/v1/reports", map[string]any{"report_name": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[ErrResponse](t, rec).Message, "invalid")

		rec = h.do(t, h.user, http.MethodPost, "/api/v1/reports", map[string]any{
			"report_name": "x", "client_name": "y", "report_type": "Unknown",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token(t, h.user, time.Hour))
		rec = httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should start research and refuse a second start", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		rec := h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/research", nil)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		started := decodeBody[reports.ResearchStarted](t, rec)
		assert.Equal(t, "resp_1", started.JobID)
		assert.Equal(t, "task-"+report.ID, started.TaskID)

		rec = h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/research", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = h.do(t, h.user, http.MethodGet, "/api/v1/reports/"+report.ID+"/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tracker.TaskStatusRunning, decodeBody[tracker.TrackingProgress](t, rec).Status)

		rec = h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Should surface submission failures as bad gateway", func(t *testing.T) {
		h := newHarness(t)
		h.submitter.err = &research.SubmissionError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
		report := h.createReport(t, h.user)

		rec := h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/research", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decodeBody[ErrResponse](t, rec).Message, "429")

		stored, err := h.store.Report().Get(context.Background(), report.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportStatusDraft, stored.Status)
	})

	t.Run("Should refuse documents for drafts and malformed uploads", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		rec := h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/document", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = h.do(t, h.user, http.MethodPost, "/api/v1/reports/"+report.ID+"/files", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should record a document link by hand", func(t *testing.T) {
		h := newHarness(t)
		report := h.createReport(t, h.user)

		rec := h.do(t, h.user, http.MethodPut, "/api/v1/reports/"+report.ID+"/document-url", map[string]string{"url": "not a url"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = h.do(t, h.user, http.MethodPut, "/api/v1/reports/"+report.ID+"/document-url", map[string]string{"url": "https://docs.google.com/document/d/1"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://docs.google.com/document/d/1", decodeBody[models.Report](t, rec).GoogleDocsURL)
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Run("Should require the admin role", func(t *testing.T) {
		h := newHarness(t)

		for _, path := range []string{"/api/v1/admin/users", "/api/v1/admin/report-types", "/api/v1/admin/jobs"} {
			rec := h.do(t, h.user, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code, path)
		}
	})

	t.Run("Should manage users and report types", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.admin, http.MethodGet, "/api/v1/admin/users", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]models.User](t, rec), 3)

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/admin/users", admin.CreateUserRequest{Email: "new@example.com"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/admin/users", admin.CreateUserRequest{Email: "new@example.com"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = h.do(t, h.admin, http.MethodPut, "/api/v1/admin/users/"+h.admin.ID+"/role", admin.SetRoleRequest{Role: models.RoleUser})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/admin/report-types", admin.ReportTypeRequest{Name: "Competitor Scan"})
		require.Equal(t, http.StatusCreated, rec.Code)
		rt := decodeBody[models.ReportType](t, rec)

		rec = h.do(t, h.admin, http.MethodPut, "/api/v1/admin/report-types/"+rt.ID+"/assign", admin.AssignRequest{UserIDs: []string{h.other.ID}})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(t, h.user, http.MethodGet, "/api/v1/reports/types", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		for _, available := range decodeBody[[]models.ReportType](t, rec) {
			assert.NotEqual(t, "Competitor Scan", available.Name)
		}

		rec = h.do(t, h.admin, http.MethodDelete, "/api/v1/admin/users/"+h.other.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("Should validate jobs before they reach the scheduler", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.admin, http.MethodPost, "/api/v1/admin/jobs", map[string]any{"job_type": "transfer", "cron": "* * * * *"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.scheduler.upserted)

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/admin/jobs", map[string]any{
			"name": "nightly-resume", "job_type": models.JobTypeResumeTracking, "cron": "0 3 * * *", "enabled": true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, h.scheduler.upserted, 1)
		assert.Equal(t, "nightly-resume", h.scheduler.upserted[0].Name)

		rec = h.do(t, h.admin, http.MethodPost, "/api/v1/admin/jobs/missing/run", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGoogleRoutes(t *testing.T) {
	t.Run("Should connect the user named by the signed state", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, h.user, http.MethodGet, "/api/v1/google/auth-url", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		authURL, err := url.Parse(decodeBody[map[string]string](t, rec)["url"])
		require.NoError(t, err)
		state := authURL.Query().Get("state")
		require.NotEmpty(t, state)

		rec = h.do(t, nil, http.MethodGet, "/api/v1/google/callback?code=abc&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "abc", h.google.exchanged[h.user.ID])

		rec = h.do(t, h.user, http.MethodGet, "/api/v1/google/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[map[string]bool](t, rec)["connected"])

		rec = h.do(t, h.user, http.MethodPost, "/api/v1/google/signout", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, h.google.exchanged)
	})

	t.Run("Should reject a forged or missing state", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, nil, http.MethodGet, "/api/v1/google/callback?code=abc&state=forged", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = h.do(t, nil, http.MethodGet, "/api/v1/google/callback?error=access_denied", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.google.exchanged)
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{store.ErrRecordNotFound, http.StatusNotFound},
		{reports.ErrTooManyFiles, http.StatusBadRequest},
		{admin.ErrForbidden, http.StatusForbidden},
		{tracker.ErrAlreadyTracking, http.StatusConflict},
		{&research.StatusCheckError{JobID: "resp_1", Message: "boom"}, http.StatusBadGateway},
		{reports.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run("Should map "+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, errorStatus(tt.err))
		})
	}
}
