package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/app"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/hostname"
	"github.com/pscheid92/hostingroble/internal/platform/correlation"
	apperrors "github.com/pscheid92/hostingroble/internal/platform/errors"
)

const contextKeyUserID = "userID"

// correlationMiddleware keeps a caller-supplied X-Request-ID or generates one, and echoes
// it back on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		if id := strings.TrimSpace(req.Header.Get(correlation.Header)); id != "" && len(id) <= 64 {
			ctx = correlation.WithID(ctx, id)
		}
		ctx = correlation.Ensure(ctx)

		id, _ := correlation.ID(ctx)
		c.Response().Header().Set(correlation.Header, id)
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders errors returned by handlers as JSON. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			return HandleError(c, err, m)
		}
	}
}

// HandleError writes err as a JSON error body.
func HandleError(c echo.Context, err error, m *metrics.HTTPMetrics) error {
	if err == nil {
		return nil
	}

	structuredErr := mapError(err)
	logError(c, structuredErr)
	m.RecordError(string(structuredErr.Type))

	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// mapError translates domain and transport errors into structured errors.
func mapError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return WrapHTTPError(httpErr)
	}

	var platformErr *app.PlatformError
	switch {
	case errors.Is(err, domain.ErrApplicationNotFound):
		return apperrors.NotFoundError("application not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NotFoundError("user not found")
	case errors.Is(err, domain.ErrApplicationLimit):
		return apperrors.ConflictError(err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		return apperrors.ConflictError("a user with this email already exists")
	case errors.Is(err, domain.ErrNotProvisioned):
		return apperrors.ConflictError("application is not deployed to the platform yet")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.UnauthorizedError("invalid email or password")
	case errors.Is(err, hostname.ErrEmptySlug):
		return apperrors.ValidationError("application name and user name must contain letters or digits").
			WithField("field", "name")
	case errors.As(err, &platformErr):
		return apperrors.ExternalError(fmt.Sprintf("failed to %s application on the deployment platform", platformErr.Op), err)
	case errors.Is(err, domain.ErrPlatformUnavailable):
		return apperrors.ExternalError("deployment platform is temporarily unavailable", err)
	default:
		return apperrors.InternalError("internal server error", err)
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if userID := c.Get(contextKeyUserID); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Client error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict, apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		errType = apperrors.TypeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = apperrors.TypeUnauthorized
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	return &apperrors.Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
		Context: make(map[string]any),
	}
}

// requireAuth accepts a bearer token or, failing that, the session cookie.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return apperrors.UnauthorizedError("malformed authorization header")
			}
			userID, err := s.tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				return apperrors.UnauthorizedError("invalid or expired token").WithCause(err)
			}
			c.Set(contextKeyUserID, userID)
			return next(c)
		}

		userID, ok := s.sessionUserID(c)
		if !ok {
			return apperrors.UnauthorizedError("authentication required")
		}
		c.Set(contextKeyUserID, userID)
		return next(c)
	}
}

func (s *Server) sessionUserID(c echo.Context) (uuid.UUID, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return uuid.Nil, false
	}
	raw, ok := session.Values[sessionKeyUserID].(string)
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func userIDFrom(c echo.Context) uuid.UUID {
	id, _ := c.Get(contextKeyUserID).(uuid.UUID)
	return id
}
