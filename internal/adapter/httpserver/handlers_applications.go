package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hostingroble/internal/app"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/hostname"
	apperrors "github.com/pscheid92/hostingroble/internal/platform/errors"
)

func (s *Server) registerApplicationRoutes(api *echo.Group) {
	apps := api.Group("/applications", s.requireAuth)
	apps.GET("", s.handleListApplications)
	apps.POST("", s.handleCreateApplication, s.criticalOpsLimiter)
	apps.GET("/:id", s.handleGetApplication)
	apps.PATCH("/:id", s.handleUpdateApplication)
	apps.DELETE("/:id", s.handleDeleteApplication, s.criticalOpsLimiter)
	apps.POST("/:id/deploy", s.handleDeploy, s.criticalOpsLimiter)
	apps.POST("/:id/stop", s.handleStop, s.criticalOpsLimiter)
	apps.POST("/:id/restart", s.handleRestart, s.criticalOpsLimiter)
	apps.GET("/:id/logs", s.handleLogs)
}

type createApplicationRequest struct {
	Name             string            `json:"name" validate:"required,min=3,max=50"`
	RepositoryURL    string            `json:"repositoryUrl" validate:"required,http_url"`
	Branch           string            `json:"branch" validate:"omitempty,max=100"`
	EnvVars          map[string]string `json:"envVars" validate:"omitempty,max=100,dive,keys,envkey,endkeys,max=4096"`
	Type             string            `json:"type" validate:"omitempty,oneof=NIXPACKS STATIC DOCKERFILE DOCKER_COMPOSE"`
	Port             int               `json:"port" validate:"omitempty,min=1,max=65535"`
	InstallCommand   string            `json:"installCommand" validate:"omitempty,max=500"`
	BuildCommand     string            `json:"buildCommand" validate:"omitempty,max=500"`
	StartCommand     string            `json:"startCommand" validate:"omitempty,max=500"`
	BaseDirectory    string            `json:"baseDirectory" validate:"omitempty,max=200"`
	PublishDirectory string            `json:"publishDirectory" validate:"omitempty,max=200"`
}

// updateApplicationRequest uses pointers so absent fields stay untouched. The domain is
// not part of it and can never change.
type updateApplicationRequest struct {
	Name             *string           `json:"name" validate:"omitempty,min=3,max=50"`
	EnvVars          map[string]string `json:"envVars" validate:"omitempty,max=100,dive,keys,envkey,endkeys,max=4096"`
	Branch           *string           `json:"branch" validate:"omitempty,min=1,max=100"`
	Port             *int              `json:"port" validate:"omitempty,min=1,max=65535"`
	InstallCommand   *string           `json:"installCommand" validate:"omitempty,max=500"`
	BuildCommand     *string           `json:"buildCommand" validate:"omitempty,max=500"`
	StartCommand     *string           `json:"startCommand" validate:"omitempty,max=500"`
	BaseDirectory    *string           `json:"baseDirectory" validate:"omitempty,max=200"`
	PublishDirectory *string           `json:"publishDirectory" validate:"omitempty,max=200"`
}

type deploymentResponse struct {
	ID        uuid.UUID               `json:"id"`
	Version   string                  `json:"version"`
	Status    domain.DeploymentStatus `json:"status"`
	Logs      string                  `json:"logs,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

type applicationResponse struct {
	ID               uuid.UUID              `json:"id"`
	Name             string                 `json:"name"`
	Domain           string                 `json:"domain"`
	URL              string                 `json:"url"`
	RepositoryURL    string                 `json:"repositoryUrl"`
	Branch           string                 `json:"branch"`
	Status           domain.State           `json:"status"`
	Provisioned      bool                   `json:"provisioned"`
	EnvVars          map[string]string      `json:"envVars"`
	Type             domain.ApplicationType `json:"type"`
	BuildPack        string                 `json:"buildPack"`
	Port             int                    `json:"port"`
	InstallCommand   string                 `json:"installCommand,omitempty"`
	BuildCommand     string                 `json:"buildCommand,omitempty"`
	StartCommand     string                 `json:"startCommand,omitempty"`
	BaseDirectory    string                 `json:"baseDirectory,omitempty"`
	PublishDirectory string                 `json:"publishDirectory,omitempty"`
	LastDeployedAt   *time.Time             `json:"lastDeployedAt"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
	Deployments      []deploymentResponse   `json:"deployments,omitempty"`
}

type logsResponse struct {
	Logs  string `json:"logs"`
	Lines int    `json:"lines"`
}

func (s *Server) toApplicationResponse(a *domain.Application) applicationResponse {
	envVars := a.EnvVars
	if envVars == nil {
		envVars = map[string]string{}
	}

	resp := applicationResponse{
		ID:               a.ID,
		Name:             a.Name,
		Domain:           a.Domain,
		URL:              hostname.URL(a.Domain, s.config.Production()),
		RepositoryURL:    a.RepoURL,
		Branch:           a.Branch,
		Status:           a.State,
		Provisioned:      a.Provisioned(),
		EnvVars:          envVars,
		Type:             a.Type,
		BuildPack:        a.Type.BuildPack(),
		Port:             a.Port,
		InstallCommand:   a.InstallCommand,
		BuildCommand:     a.BuildCommand,
		StartCommand:     a.StartCommand,
		BaseDirectory:    a.BaseDirectory,
		PublishDirectory: a.PublishDirectory,
		LastDeployedAt:   a.LastDeployedAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	for _, d := range a.Deployments {
		resp.Deployments = append(resp.Deployments, deploymentResponse{
			ID: d.ID, Version: d.Version, Status: d.Status, Logs: d.Logs, CreatedAt: d.CreatedAt,
		})
	}
	return resp
}

func parseApplicationID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Malformed ids are indistinguishable from missing ones.
		return uuid.Nil, apperrors.NotFoundError("application not found").WithField("id", c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleListApplications(c echo.Context) error {
	apps, err := s.app.ListApplications(c.Request().Context(), userIDFrom(c))
	if err != nil {
		return err
	}

	resp := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		resp = append(resp, s.toApplicationResponse(&apps[i]))
	}
	return respond(c, http.StatusOK, resp)
}

func (s *Server) handleGetApplication(c echo.Context) error {
	appID, err := parseApplicationID(c)
	if err != nil {
		return err
	}

	a, err := s.app.GetApplication(c.Request().Context(), userIDFrom(c), appID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, s.toApplicationResponse(a))
}

func (s *Server) handleCreateApplication(c echo.Context) error {
	var req createApplicationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	a, err := s.app.CreateApplication(c.Request().Context(), userIDFrom(c), app.CreateApplicationInput{
		Name:             req.Name,
		RepoURL:          req.RepositoryURL,
		Branch:           req.Branch,
		EnvVars:          req.EnvVars,
		Type:             domain.ApplicationType(req.Type),
		Port:             req.Port,
		InstallCommand:   req.InstallCommand,
		BuildCommand:     req.BuildCommand,
		StartCommand:     req.StartCommand,
		BaseDirectory:    req.BaseDirectory,
		PublishDirectory: req.PublishDirectory,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, s.toApplicationResponse(a))
}

func (s *Server) handleUpdateApplication(c echo.Context) error {
	appID, err := parseApplicationID(c)
	if err != nil {
		return err
	}

	var req updateApplicationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	a, err := s.app.UpdateApplication(c.Request().Context(), userIDFrom(c), appID, domain.ApplicationPatch{
		Name:             req.Name,
		EnvVars:          req.EnvVars,
		Branch:           req.Branch,
		Port:             req.Port,
		InstallCommand:   req.InstallCommand,
		BuildCommand:     req.BuildCommand,
		StartCommand:     req.StartCommand,
		BaseDirectory:    req.BaseDirectory,
		PublishDirectory: req.PublishDirectory,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, s.toApplicationResponse(a))
}

func (s *Server) handleDeleteApplication(c echo.Context) error {
	appID, err := parseApplicationID(c)
	if err != nil {
		return err
	}

	if err := s.app.DeleteApplication(c.Request().Context(), userIDFrom(c), appID); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Application deleted")
}

func (s *Server) handleDeploy(c echo.Context) error {
	return s.lifecycle(c, s.app.Deploy)
}

func (s *Server) handleStop(c echo.Context) error {
	return s.lifecycle(c, s.app.Stop)
}

func (s *Server) handleRestart(c echo.Context) error {
	return s.lifecycle(c, s.app.Restart)
}

type lifecycleFunc func(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error)

func (s *Server) lifecycle(c echo.Context, op lifecycleFunc) error {
	appID, err := parseApplicationID(c)
	if err != nil {
		return err
	}

	a, err := op(c.Request().Context(), userIDFrom(c), appID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, s.toApplicationResponse(a))
}

func (s *Server) handleLogs(c echo.Context) error {
	appID, err := parseApplicationID(c)
	if err != nil {
		return err
	}

	// Anything but a positive integer falls back to the default.
	lines, err := strconv.Atoi(c.QueryParam("lines"))
	if err != nil {
		lines = app.DefaultLogLines
	}
	lines = app.ClampLogLines(lines)

	logs, err := s.app.Logs(c.Request().Context(), userIDFrom(c), appID, lines)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, logsResponse{Logs: logs, Lines: lines})
}
