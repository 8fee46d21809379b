package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/app"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	registerFn          func(ctx context.Context, email, name, password string) (*domain.User, error)
	authenticateFn      func(ctx context.Context, email, password string) (*domain.User, error)
	getUserFn           func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	listApplicationsFn  func(ctx context.Context, userID uuid.UUID) ([]domain.Application, error)
	getApplicationFn    func(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	createApplicationFn func(ctx context.Context, userID uuid.UUID, in app.CreateApplicationInput) (*domain.Application, error)
	updateApplicationFn func(ctx context.Context, userID, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error)
	deployFn            func(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	stopFn              func(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	restartFn           func(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	deleteApplicationFn func(ctx context.Context, userID, appID uuid.UUID) error
	logsFn              func(ctx context.Context, userID, appID uuid.UUID, lines int) (string, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockAppService) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, name, password)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return nil, domain.ErrInvalidCredentials
}

func (m *mockAppService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &domain.User{ID: userID, Email: "ana@example.com", Name: "Ana Ruiz"}, nil
}

func (m *mockAppService) ListApplications(ctx context.Context, userID uuid.UUID) ([]domain.Application, error) {
	if m.listApplicationsFn != nil {
		return m.listApplicationsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAppService) GetApplication(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	if m.getApplicationFn != nil {
		return m.getApplicationFn(ctx, userID, appID)
	}
	return nil, domain.ErrApplicationNotFound
}

func (m *mockAppService) CreateApplication(ctx context.Context, userID uuid.UUID, in app.CreateApplicationInput) (*domain.Application, error) {
	if m.createApplicationFn != nil {
		return m.createApplicationFn(ctx, userID, in)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) UpdateApplication(ctx context.Context, userID, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error) {
	if m.updateApplicationFn != nil {
		return m.updateApplicationFn(ctx, userID, appID, patch)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) Deploy(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	if m.deployFn != nil {
		return m.deployFn(ctx, userID, appID)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) Stop(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	if m.stopFn != nil {
		return m.stopFn(ctx, userID, appID)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) Restart(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	if m.restartFn != nil {
		return m.restartFn(ctx, userID, appID)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) DeleteApplication(ctx context.Context, userID, appID uuid.UUID) error {
	if m.deleteApplicationFn != nil {
		return m.deleteApplicationFn(ctx, userID, appID)
	}
	return nil
}

func (m *mockAppService) Logs(ctx context.Context, userID, appID uuid.UUID, lines int) (string, error) {
	if m.logsFn != nil {
		return m.logsFn(ctx, userID, appID, lines)
	}
	return "", nil
}

const testToken = "valid-token"

// mockTokens accepts testToken for testUserID.
type mockTokens struct {
	issueFn func(userID uuid.UUID, email string) (string, error)
}

func (m *mockTokens) Issue(userID uuid.UUID, email string) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID, email)
	}
	return testToken, nil
}

func (m *mockTokens) Verify(token string) (uuid.UUID, error) {
	if token == testToken {
		return testUserID, nil
	}
	return uuid.Nil, errors.New("token is malformed")
}

type mockLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	keys    []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.keys = append(m.keys, key)
	if m.allowFn != nil {
		return m.allowFn(ctx, key)
	}
	return true, nil
}

// --- Test helpers ---

var (
	testUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testAppID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func newTestServer(t *testing.T, svc appService, opts ...func(*Server)) *Server {
	t.Helper()

	store := sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!!"))
	store.Options = &sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true}

	e := echo.New()
	e.Validator = newRequestValidator()

	reg := metrics.NewRegistry()
	srv := &Server{
		echo:            e,
		config:          &config.Config{FrontendURL: "http://localhost:5173", AppEnv: "development"},
		app:             svc,
		tokens:          &mockTokens{},
		sessionStore:    store,
		criticalLimiter: &mockLimiter{},
		rateMetrics:     metrics.NewRateLimitMetrics(reg),
		httpMetrics:     metrics.NewHTTPMetrics(reg),
		registry:        reg,
		startTime:       time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withCriticalLimiter(l Limiter) func(*Server) {
	return func(s *Server) {
		s.criticalLimiter = l
	}
}

func withTokens(tokens tokenIssuer) func(*Server) {
	return func(s *Server) {
		s.tokens = tokens
	}
}

func withBearer(req *http.Request) {
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
}

func serve(t *testing.T, srv *Server, method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, mod := range mods {
		mod(req)
	}

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Type    string          `json:"type"`
	Context map[string]any  `json:"context"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &v), rec.Body.String())
	return v
}

func sampleApplication() *domain.Application {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Application{
		ID:         testAppID,
		UserID:     testUserID,
		ExternalID: "cool-123",
		Name:       "My Site",
		Domain:     "my-site.ana-ruiz.hostingroble.com",
		RepoURL:    "https://github.com/ana/site",
		Branch:     "main",
		EnvVars:    map[string]string{"API_KEY": "secret"},
		Type:       domain.TypeNixpacks,
		Port:       3000,
		State:      domain.StateRunning,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}
