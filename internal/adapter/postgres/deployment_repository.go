package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/hostingroble/internal/domain"
)

type DeploymentRepo struct {
	pool *pgxpool.Pool
}

func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

type deploymentRow struct {
	ID            uuid.UUID `db:"id"`
	ApplicationID uuid.UUID `db:"application_id"`
	Version       string    `db:"version"`
	Status        string    `db:"status"`
	Logs          string    `db:"logs"`
	CreatedAt     time.Time `db:"created_at"`
}

func (row deploymentRow) toDomain() domain.Deployment {
	return domain.Deployment{
		ID:            row.ID,
		ApplicationID: row.ApplicationID,
		Version:       row.Version,
		Status:        domain.DeploymentStatus(row.Status),
		Logs:          row.Logs,
		CreatedAt:     row.CreatedAt,
	}
}

const deploymentColumns = `id, application_id, version, status, logs, created_at`

func (r *DeploymentRepo) Create(ctx context.Context, applicationID uuid.UUID, version string, status domain.DeploymentStatus) (*domain.Deployment, error) {
	rows, err := r.pool.Query(ctx, `
		INSERT INTO deployments (application_id, version, status)
		VALUES ($1, $2, $3)
		RETURNING `+deploymentColumns,
		applicationID, version, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[deploymentRow])
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	d := row.toDomain()
	return &d, nil
}

func (r *DeploymentRepo) ListRecent(ctx context.Context, applicationID uuid.UUID, limit int) ([]domain.Deployment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments
		WHERE application_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`,
		applicationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[deploymentRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan deployments: %w", err)
	}

	deployments := make([]domain.Deployment, 0, len(collected))
	for _, row := range collected {
		deployments = append(deployments, row.toDomain())
	}
	return deployments, nil
}

func (r *DeploymentRepo) SettleInProgress(ctx context.Context, applicationID uuid.UUID, status domain.DeploymentStatus) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deployments SET status = $2
		WHERE application_id = $1 AND status = 'IN_PROGRESS'`,
		applicationID, string(status))
	if err != nil {
		return 0, fmt.Errorf("failed to settle deployments: %w", err)
	}
	return tag.RowsAffected(), nil
}
