package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/app"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/platform/config"
)

type appService interface {
	Register(ctx context.Context, email, name, password string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	ListApplications(ctx context.Context, userID uuid.UUID) ([]domain.Application, error)
	GetApplication(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	CreateApplication(ctx context.Context, userID uuid.UUID, in app.CreateApplicationInput) (*domain.Application, error)
	UpdateApplication(ctx context.Context, userID, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error)
	Deploy(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	Stop(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	Restart(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)
	DeleteApplication(ctx context.Context, userID, appID uuid.UUID) error
	Logs(ctx context.Context, userID, appID uuid.UUID, lines int) (string, error)
}

type tokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, error)
	Verify(token string) (uuid.UUID, error)
}

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	tokens       tokenIssuer
	sessionStore *sessions.CookieStore

	criticalLimiter Limiter
	rateMetrics     *metrics.RateLimitMetrics
	httpMetrics     *metrics.HTTPMetrics
	registry        *prometheus.Registry

	healthChecks []HealthCheck
	startTime    time.Time
}

// Options carries the optional collaborators of the server.
type Options struct {
	// CriticalLimiter limits create, delete and lifecycle calls per user. Nil limits
	// them per process.
	CriticalLimiter Limiter
	Registry        *prometheus.Registry
	// RateMetrics is shared with CriticalLimiter when that records into the same registry.
	RateMetrics  *metrics.RateLimitMetrics
	HealthChecks []HealthCheck
}

func NewServer(cfg *config.Config, app appService, tokens tokenIssuer, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	reg := opts.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	rateMetrics := opts.RateMetrics
	if rateMetrics == nil {
		rateMetrics = metrics.NewRateLimitMetrics(reg)
	}
	criticalLimiter := opts.CriticalLimiter
	if criticalLimiter == nil {
		criticalLimiter = newMemoryLimiter(CriticalOpsLimit, CriticalOpsWindow)
	}

	srv := &Server{
		echo:            e,
		config:          cfg,
		app:             app,
		tokens:          tokens,
		sessionStore:    setupSessionStore(cfg),
		criticalLimiter: criticalLimiter,
		rateMetrics:     rateMetrics,
		httpMetrics:     metrics.NewHTTPMetrics(reg),
		registry:        reg,
		healthChecks:    opts.HealthChecks,
		startTime:       time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName      = "hostingroble-session"
	sessionKeyUserID = "user_id"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	if err := c.JSON(status, envelope{Success: true, Data: data}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func respondMessage(c echo.Context, status int, message string) error {
	if err := c.JSON(status, envelope{Success: true, Message: message}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
