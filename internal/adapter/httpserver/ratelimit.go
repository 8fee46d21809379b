package httpserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/hostingroble/internal/platform/errors"
	"golang.org/x/time/rate"
)

const (
	generalLimit  = 100
	generalWindow = 15 * time.Minute

	authLimit  = 5
	authWindow = 15 * time.Minute

	// CriticalOpsLimit bounds state-changing application calls per user within CriticalOpsWindow.
	CriticalOpsLimit  = 3
	CriticalOpsWindow = time.Minute

	rateLimiterExpiry = 15 * time.Minute
)

const (
	generalDenyMessage  = "Too many requests, please try again later"
	authDenyMessage     = "Too many authentication attempts, please try again later"
	criticalDenyMessage = "Too many operations, please wait before trying again"
)

// memoryLimiter is the per-process Limiter used when no shared store is configured. It
// refills limit tokens evenly over window.
type memoryLimiter struct {
	store *middleware.RateLimiterMemoryStore
}

func newMemoryLimiter(limit int, window time.Duration) *memoryLimiter {
	return &memoryLimiter{store: newMemoryStore(limit, window)}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.store.Allow(key)
}

func newMemoryStore(limit int, window time.Duration) *middleware.RateLimiterMemoryStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(limit) / window.Seconds()),
		Burst:     limit,
		ExpiresIn: rateLimiterExpiry,
	})
}

// newIPRateLimiter limits requests per client IP.
func (s *Server) newIPRateLimiter(name string, limit int, window time.Duration) echo.MiddlewareFunc {
	message := generalDenyMessage
	if name == "auth" {
		message = authDenyMessage
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: newMemoryStore(limit, window),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.rateMetrics.Rejections.WithLabelValues(name).Inc()
			return HandleError(c, apperrors.RateLimitedError(message).WithField("limiter", name), s.httpMetrics)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return HandleError(c, apperrors.InternalError("failed to identify client", err), s.httpMetrics)
		},
	})
}

// criticalOpsLimiter limits state-changing application operations per authenticated user.
// It must run after requireAuth.
func (s *Server) criticalOpsLimiter(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := userIDFrom(c).String()
		allowed, err := s.criticalLimiter.Allow(c.Request().Context(), key)
		if err != nil {
			slog.WarnContext(c.Request().Context(), "Critical operation limiter failed, allowing request", "error", err)
			return next(c)
		}
		if !allowed {
			s.rateMetrics.Rejections.WithLabelValues("critical").Inc()
			return apperrors.RateLimitedError(criticalDenyMessage).WithField("limiter", "critical")
		}
		return next(c)
	}
}
