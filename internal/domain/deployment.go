package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "PENDING"
	DeploymentInProgress DeploymentStatus = "IN_PROGRESS"
	DeploymentSuccess    DeploymentStatus = "SUCCESS"
	DeploymentFailed     DeploymentStatus = "FAILED"
)

// InitialDeploymentVersion labels the deployment triggered by application creation.
const InitialDeploymentVersion = "1.0.0"

type Deployment struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	Version       string
	Status        DeploymentStatus
	Logs          string
	CreatedAt     time.Time
}

type DeploymentRepository interface {
	Create(ctx context.Context, applicationID uuid.UUID, version string, status DeploymentStatus) (*Deployment, error)
	ListRecent(ctx context.Context, applicationID uuid.UUID, limit int) ([]Deployment, error)
	// SettleInProgress moves every IN_PROGRESS deployment of the application to status
	// and returns how many rows changed.
	SettleInProgress(ctx context.Context, applicationID uuid.UUID, status DeploymentStatus) (int64, error)
}
