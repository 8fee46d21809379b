package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/hostingroble/internal/domain"
)

const (
	DefaultLogLines = 100
	MaxLogLines     = 5000
)

// CreateApplicationInput is what a user supplies for a new application. Zero values fall
// back to the domain defaults.
type CreateApplicationInput struct {
	Name             string
	RepoURL          string
	Branch           string
	EnvVars          map[string]string
	Type             domain.ApplicationType
	Port             int
	InstallCommand   string
	BuildCommand     string
	StartCommand     string
	BaseDirectory    string
	PublishDirectory string
}

// CreateApplication registers the application locally, provisions it on the platform and
// triggers the first deployment. Once the local record exists it is kept, in state FAILED
// if the platform refused it.
func (s *Service) CreateApplication(ctx context.Context, userID uuid.UUID, in CreateApplicationInput) (*domain.Application, error) {
	count, err := s.apps.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= s.cfg.MaxAppsPerUser {
		return nil, fmt.Errorf("%w: at most %d applications per user", domain.ErrApplicationLimit, s.cfg.MaxAppsPerUser)
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	host, err := s.hostnames.Generate(in.Name, owner.Name)
	if err != nil {
		return nil, err
	}

	draft := newApplication(userID, host, in)
	draft.MaxActive = s.cfg.MaxAppsPerUser
	app, err := s.apps.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	log := slog.With("application_id", app.ID.String(), "domain", app.Domain)

	remote, err := s.platform.CreateApplication(ctx, platformConfig(app))
	if err != nil {
		s.markFailed(ctx, app)
		return nil, &PlatformError{Op: "create", Err: err}
	}

	if err := s.apps.SetExternalID(ctx, app.ID, remote.ID); err != nil {
		return nil, err
	}
	app.ExternalID = remote.ID
	log = log.With("external_id", remote.ID)

	_ = s.pushEnvVars(ctx, app) // partial failure is logged and tolerated

	if _, err := s.platform.Deploy(ctx, app.ExternalID); err != nil {
		s.markFailed(ctx, app)
		return nil, &PlatformError{Op: "deploy", Err: err}
	}

	if err := s.recordDeployment(ctx, app, domain.InitialDeploymentVersion); err != nil {
		return nil, err
	}

	log.Info("Application created")
	return app, nil
}

func newApplication(userID uuid.UUID, host string, in CreateApplicationInput) domain.NewApplication {
	app := domain.NewApplication{
		UserID:           userID,
		Name:             in.Name,
		Domain:           host,
		RepoURL:          in.RepoURL,
		Branch:           in.Branch,
		EnvVars:          in.EnvVars,
		Type:             in.Type,
		Port:             in.Port,
		InstallCommand:   in.InstallCommand,
		BuildCommand:     in.BuildCommand,
		StartCommand:     in.StartCommand,
		BaseDirectory:    in.BaseDirectory,
		PublishDirectory: in.PublishDirectory,
	}
	if app.Branch == "" {
		app.Branch = domain.DefaultBranch
	}
	if app.Type == "" {
		app.Type = domain.DefaultApplicationType
	}
	if app.Port == 0 {
		app.Port = domain.DefaultPort
	}
	if app.EnvVars == nil {
		app.EnvVars = map[string]string{}
	}
	return app
}

func platformConfig(app *domain.Application) domain.PlatformAppConfig {
	return domain.PlatformAppConfig{
		Name:             app.Name,
		RepoURL:          app.RepoURL,
		Branch:           app.Branch,
		BuildPack:        app.Type.BuildPack(),
		Domain:           app.Domain,
		Port:             app.Port,
		InstallCommand:   app.InstallCommand,
		BuildCommand:     app.BuildCommand,
		StartCommand:     app.StartCommand,
		BaseDirectory:    app.BaseDirectory,
		PublishDirectory: app.PublishDirectory,
		Static:           app.Type == domain.TypeStatic,
	}
}

// pushEnvVars sends the application's variables to the platform. Failures are logged and
// returned, never rolled back.
func (s *Service) pushEnvVars(ctx context.Context, app *domain.Application) error {
	if len(app.EnvVars) == 0 {
		return nil
	}

	err := s.platform.SetEnvironmentVariables(ctx, app.ExternalID, app.EnvVars)
	if err == nil {
		return nil
	}

	var partial *domain.PartialConfigError
	if errors.As(err, &partial) {
		s.metrics.EnvVarFailures.Add(float64(len(partial.Failed)))
		slog.Warn("Failed to set environment variables",
			"application_id", app.ID.String(),
			"failed_keys", partial.FailedKeys(),
			"applied", partial.Applied,
			"error", err)
		return err
	}

	s.metrics.EnvVarFailures.Add(float64(len(app.EnvVars)))
	slog.Warn("Failed to set environment variables", "application_id", app.ID.String(), "error", err)
	return err
}

// markFailed records a failed write to the platform. A failure to persist the state is
// only logged; the caller still reports the platform error.
func (s *Service) markFailed(ctx context.Context, app *domain.Application) {
	if err := s.apps.UpdateState(ctx, app.ID, domain.StateFailed); err != nil {
		slog.Error("Failed to mark application as failed", "application_id", app.ID.String(), "error", err)
		return
	}
	app.State = domain.StateFailed
}

// recordDeployment moves the application to DEPLOYING after a successful trigger.
func (s *Service) recordDeployment(ctx context.Context, app *domain.Application, version string) error {
	now := s.clock.Now().UTC()

	if err := s.apps.UpdateState(ctx, app.ID, domain.StateDeploying); err != nil {
		return err
	}
	app.State = domain.StateDeploying

	deployment, err := s.deployments.Create(ctx, app.ID, version, domain.DeploymentInProgress)
	if err != nil {
		return err
	}
	app.Deployments = append([]domain.Deployment{*deployment}, app.Deployments...)

	if err := s.apps.MarkDeployed(ctx, app.ID, now); err != nil {
		return err
	}
	app.LastDeployedAt = &now
	return nil
}

// ListApplications returns the caller's applications with their platform status synced.
func (s *Service) ListApplications(ctx context.Context, userID uuid.UUID) ([]domain.Application, error) {
	apps, err := s.apps.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.syncStatuses(ctx, apps)
	return apps, nil
}

// GetApplication returns one application with synced status and its recent deployments.
func (s *Service) GetApplication(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	app, err := s.apps.GetForUser(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	s.syncStatus(ctx, app)

	deployments, err := s.deployments.ListRecent(ctx, app.ID, recentDeployments)
	if err != nil {
		return nil, err
	}
	app.Deployments = deployments
	return app, nil
}

// UpdateApplication changes the mutable fields. New environment variables are pushed to
// the platform when the application is provisioned; the update fails only when none of
// them could be applied.
func (s *Service) UpdateApplication(ctx context.Context, userID, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error) {
	if _, err := s.apps.GetForUser(ctx, userID, appID); err != nil {
		return nil, err
	}

	app, err := s.apps.Update(ctx, appID, patch)
	if err != nil {
		return nil, err
	}

	if patch.EnvVars == nil || !app.Provisioned() {
		return app, nil
	}

	err = s.pushEnvVars(ctx, app)
	var partial *domain.PartialConfigError
	if errors.As(err, &partial) && !partial.Total() {
		return app, nil
	}
	if err != nil {
		return nil, &PlatformError{Op: "environment", Err: err}
	}
	return app, nil
}

// Deploy triggers a new deployment. The state is set to DEPLOYING before the call and to
// FAILED if the platform rejects it.
func (s *Service) Deploy(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	app, err := s.provisionedApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	if err := s.apps.UpdateState(ctx, app.ID, domain.StateDeploying); err != nil {
		return nil, err
	}
	app.State = domain.StateDeploying

	if _, err := s.platform.Deploy(ctx, app.ExternalID); err != nil {
		s.markFailed(ctx, app)
		return nil, &PlatformError{Op: "deploy", Err: err}
	}

	version := s.clock.Now().UTC().Format(time.RFC3339)
	if err := s.recordDeployment(ctx, app, version); err != nil {
		return nil, err
	}

	slog.Info("Deployment triggered", "application_id", app.ID.String(), "version", version)
	return app, nil
}

// Stop stops the application. The local state changes only after the platform accepted.
func (s *Service) Stop(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	return s.trigger(ctx, userID, appID, "stop", s.platform.Stop, domain.StateStopped)
}

// Restart restarts the application. The local state changes only after the platform accepted.
func (s *Service) Restart(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	return s.trigger(ctx, userID, appID, "restart", s.platform.Restart, domain.StateRunning)
}

func (s *Service) trigger(
	ctx context.Context,
	userID, appID uuid.UUID,
	op string,
	call func(ctx context.Context, externalID string) error,
	next domain.State,
) (*domain.Application, error) {
	app, err := s.provisionedApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	if err := call(ctx, app.ExternalID); err != nil {
		return nil, &PlatformError{Op: op, Err: err}
	}

	if err := s.apps.UpdateState(ctx, app.ID, next); err != nil {
		return nil, err
	}
	app.State = next
	return app, nil
}

// DeleteApplication removes the application from the platform on a best-effort basis and
// marks it DELETED, which frees a slot.
func (s *Service) DeleteApplication(ctx context.Context, userID, appID uuid.UUID) error {
	app, err := s.apps.GetForUser(ctx, userID, appID)
	if err != nil {
		return err
	}

	if app.Provisioned() {
		if err := s.platform.Delete(ctx, app.ExternalID); err != nil {
			slog.Warn("Failed to delete application on platform",
				"application_id", app.ID.String(), "external_id", app.ExternalID, "error", err)
		}
	}

	if err := s.apps.UpdateState(ctx, app.ID, domain.StateDeleted); err != nil {
		return err
	}

	slog.Info("Application deleted", "application_id", app.ID.String())
	return nil
}

// ClampLogLines caps a requested line count at MaxLogLines. Non-positive counts mean
// DefaultLogLines.
func ClampLogLines(lines int) int {
	if lines <= 0 {
		return DefaultLogLines
	}
	return min(lines, MaxLogLines)
}

// Logs returns the last lines of the application's runtime logs. While the application
// is not running yet it returns a provisioning notice instead of an error.
func (s *Service) Logs(ctx context.Context, userID, appID uuid.UUID, lines int) (string, error) {
	app, err := s.provisionedApplication(ctx, userID, appID)
	if err != nil {
		return "", err
	}

	logs, err := s.platform.GetLogs(ctx, app.ExternalID, ClampLogLines(lines))
	if errors.Is(err, domain.ErrPlatformNotRunning) {
		return provisioningNotice(app.State), nil
	}
	if err != nil {
		return "", &PlatformError{Op: "logs", Err: err}
	}
	return logs, nil
}

func provisioningNotice(state domain.State) string {
	return "Application is still deploying. Logs will be available once the application is running.\n\nCurrent status: " + string(state)
}

func (s *Service) provisionedApplication(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	app, err := s.apps.GetForUser(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	if !app.Provisioned() {
		return nil, domain.ErrNotProvisioned
	}
	return app, nil
}
