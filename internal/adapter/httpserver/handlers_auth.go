package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hostingroble/internal/domain"
)

func (s *Server) registerAuthRoutes(api *echo.Group) {
	limiter := s.newIPRateLimiter("auth", authLimit, authWindow)

	auth := api.Group("/auth")
	auth.POST("/register", s.handleRegister, limiter)
	auth.POST("/login", s.handleLogin, limiter)
	auth.POST("/logout", s.handleLogout)
	auth.GET("/me", s.handleMe, s.requireAuth)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type applicationSummary struct {
	ID     uuid.UUID    `json:"id"`
	Name   string       `json:"name"`
	Domain string       `json:"domain"`
	Status domain.State `json:"status"`
}

type meResponse struct {
	userResponse
	Applications []applicationSummary `json:"applications"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.app.Register(c.Request().Context(), req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}

	slog.InfoContext(c.Request().Context(), "User registered", "user_id", user.ID.String())
	return s.startSession(c, http.StatusCreated, user)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.app.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return s.startSession(c, http.StatusOK, user)
}

// startSession issues a bearer token and stores the user in the session cookie.
func (s *Server) startSession(c echo.Context, status int, user *domain.User) error {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyUserID] = user.ID.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return respond(c, status, authResponse{User: toUserResponse(user), Token: token})
}

func (s *Server) handleLogout(c echo.Context) error {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err == nil {
		session.Options.MaxAge = -1
		if err := session.Save(c.Request(), c.Response().Writer); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
	}
	return respondMessage(c, http.StatusOK, "Logged out")
}

func (s *Server) handleMe(c echo.Context) error {
	ctx := c.Request().Context()
	userID := userIDFrom(c)

	user, err := s.app.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	apps, err := s.app.ListApplications(ctx, userID)
	if err != nil {
		return err
	}

	summaries := make([]applicationSummary, 0, len(apps))
	for _, a := range apps {
		summaries = append(summaries, applicationSummary{ID: a.ID, Name: a.Name, Domain: a.Domain, Status: a.State})
	}

	return respond(c, http.StatusOK, meResponse{userResponse: toUserResponse(user), Applications: summaries})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}
