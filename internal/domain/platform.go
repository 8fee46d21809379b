package domain

import (
	"context"
	"time"
)

// PlatformAppConfig is what the deployment platform needs to provision an application.
type PlatformAppConfig struct {
	Name             string
	RepoURL          string
	Branch           string
	BuildPack        string
	Domain           string
	Port             int
	InstallCommand   string
	BuildCommand     string
	StartCommand     string
	BaseDirectory    string
	PublishDirectory string
	Static           bool
}

type PlatformApp struct {
	ID     string
	Name   string
	Status string // raw, platform-defined status string; may be empty
}

type PlatformDeployment struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

// Platform is the remote deployment platform. Every method performs a network call.
type Platform interface {
	CreateApplication(ctx context.Context, cfg PlatformAppConfig) (*PlatformApp, error)
	GetApplication(ctx context.Context, externalID string) (*PlatformApp, error)
	// SetEnvironmentVariables pushes one variable per call. Partial failure returns a
	// *PartialConfigError and is never rolled back.
	SetEnvironmentVariables(ctx context.Context, externalID string, vars map[string]string) error
	Deploy(ctx context.Context, externalID string) (*PlatformDeployment, error)
	Stop(ctx context.Context, externalID string) error
	Restart(ctx context.Context, externalID string) error
	Delete(ctx context.Context, externalID string) error
	// GetLogs returns ErrPlatformNotRunning while the application is still being provisioned.
	GetLogs(ctx context.Context, externalID string, lines int) (string, error)
}
