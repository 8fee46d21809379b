package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/platform/crypto"
)

// ApplicationRepo stores applications. Environment variable values are encrypted with
// the configured crypto.Service before they reach the database.
type ApplicationRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

func NewApplicationRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *ApplicationRepo {
	return &ApplicationRepo{pool: pool, crypto: cryptoSvc}
}

const applicationColumns = `id, user_id, external_id, name, domain, repo_url, branch, env_vars, app_type, port,
	install_command, build_command, start_command, base_directory, publish_directory,
	state, last_deployed_at, created_at, updated_at`

type applicationRow struct {
	ID               uuid.UUID         `db:"id"`
	UserID           uuid.UUID         `db:"user_id"`
	ExternalID       string            `db:"external_id"`
	Name             string            `db:"name"`
	Domain           string            `db:"domain"`
	RepoURL          string            `db:"repo_url"`
	Branch           string            `db:"branch"`
	EnvVars          map[string]string `db:"env_vars"`
	AppType          string            `db:"app_type"`
	Port             int               `db:"port"`
	InstallCommand   string            `db:"install_command"`
	BuildCommand     string            `db:"build_command"`
	StartCommand     string            `db:"start_command"`
	BaseDirectory    string            `db:"base_directory"`
	PublishDirectory string            `db:"publish_directory"`
	State            string            `db:"state"`
	LastDeployedAt   *time.Time        `db:"last_deployed_at"`
	CreatedAt        time.Time         `db:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"`
}

func (r *ApplicationRepo) toDomain(row applicationRow) (*domain.Application, error) {
	envVars, err := crypto.DecryptValues(r.crypto, row.EnvVars)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt env vars of application %s: %w", row.ID, err)
	}

	return &domain.Application{
		ID:               row.ID,
		UserID:           row.UserID,
		ExternalID:       row.ExternalID,
		Name:             row.Name,
		Domain:           row.Domain,
		RepoURL:          row.RepoURL,
		Branch:           row.Branch,
		EnvVars:          envVars,
		Type:             domain.ApplicationType(row.AppType),
		Port:             row.Port,
		InstallCommand:   row.InstallCommand,
		BuildCommand:     row.BuildCommand,
		StartCommand:     row.StartCommand,
		BaseDirectory:    row.BaseDirectory,
		PublishDirectory: row.PublishDirectory,
		State:            domain.State(row.State),
		LastDeployedAt:   row.LastDeployedAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (r *ApplicationRepo) queryOne(ctx context.Context, sql string, args ...any) (*domain.Application, error) {
	return r.queryOneOn(ctx, r.pool, sql, args...)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *ApplicationRepo) queryOneOn(ctx context.Context, q querier, sql string, args ...any) (*domain.Application, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[applicationRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(row)
}

// Create inserts the application in state PENDING. When app.MaxActive is set, the owner's
// row is locked for the transaction so concurrent creates for the same user are counted
// one after another; reaching the cap returns domain.ErrApplicationLimit.
func (r *ApplicationRepo) Create(ctx context.Context, app domain.NewApplication) (*domain.Application, error) {
	envVars := app.EnvVars
	if envVars == nil {
		envVars = map[string]string{}
	}
	sealed, err := crypto.EncryptValues(r.crypto, envVars)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt env vars: %w", err)
	}

	var created *domain.Application
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if app.MaxActive > 0 {
			if err := checkActiveLimit(ctx, tx, app.UserID, app.MaxActive); err != nil {
				return err
			}
		}

		var err error
		created, err = r.queryOneOn(ctx, tx, `
			INSERT INTO applications (user_id, name, domain, repo_url, branch, env_vars, app_type, port,
				install_command, build_command, start_command, base_directory, publish_directory, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+applicationColumns,
			app.UserID, app.Name, app.Domain, app.RepoURL, app.Branch, sealed, string(app.Type), app.Port,
			app.InstallCommand, app.BuildCommand, app.StartCommand, app.BaseDirectory, app.PublishDirectory,
			string(domain.StatePending))
		return err
	})
	if errors.Is(err, domain.ErrApplicationLimit) || errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return created, nil
}

func checkActiveLimit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, limit int) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM applications WHERE user_id = $1 AND state <> 'DELETED'`, userID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count applications: %w", err)
	}
	if count >= limit {
		return fmt.Errorf("%w: at most %d applications per user", domain.ErrApplicationLimit, limit)
	}
	return nil
}

func (r *ApplicationRepo) GetForUser(ctx context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	app, err := r.queryOne(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE id = $1 AND user_id = $2 AND state <> 'DELETED'`,
		appID, userID)
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE user_id = $1 AND state <> 'DELETED'
		ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[applicationRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan applications: %w", err)
	}

	apps := make([]domain.Application, 0, len(collected))
	for _, row := range collected {
		app, err := r.toDomain(row)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, nil
}

func (r *ApplicationRepo) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM applications WHERE user_id = $1 AND state <> 'DELETED'`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return count, nil
}

func (r *ApplicationRepo) Update(ctx context.Context, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error) {
	var envVars any
	if patch.EnvVars != nil {
		sealed, err := crypto.EncryptValues(r.crypto, patch.EnvVars)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt env vars: %w", err)
		}
		envVars = sealed
	}

	updated, err := r.queryOne(ctx, `
		UPDATE applications SET
			name              = COALESCE($2, name),
			env_vars          = COALESCE($3, env_vars),
			branch            = COALESCE($4, branch),
			port              = COALESCE($5, port),
			install_command   = COALESCE($6, install_command),
			build_command     = COALESCE($7, build_command),
			start_command     = COALESCE($8, start_command),
			base_directory    = COALESCE($9, base_directory),
			publish_directory = COALESCE($10, publish_directory),
			updated_at        = NOW()
		WHERE id = $1 AND state <> 'DELETED'
		RETURNING `+applicationColumns,
		appID, patch.Name, envVars, patch.Branch, patch.Port,
		patch.InstallCommand, patch.BuildCommand, patch.StartCommand, patch.BaseDirectory, patch.PublishDirectory)
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	return updated, nil
}

func (r *ApplicationRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrApplicationNotFound
	}
	return nil
}

func (r *ApplicationRepo) UpdateState(ctx context.Context, appID uuid.UUID, state domain.State) error {
	return r.exec(ctx, "update application state",
		`UPDATE applications SET state = $2, updated_at = NOW() WHERE id = $1`, appID, string(state))
}

func (r *ApplicationRepo) SetExternalID(ctx context.Context, appID uuid.UUID, externalID string) error {
	return r.exec(ctx, "set external id",
		`UPDATE applications SET external_id = $2, updated_at = NOW() WHERE id = $1`, appID, externalID)
}

func (r *ApplicationRepo) MarkDeployed(ctx context.Context, appID uuid.UUID, at time.Time) error {
	return r.exec(ctx, "mark application deployed",
		`UPDATE applications SET last_deployed_at = $2, updated_at = NOW() WHERE id = $1`, appID, at)
}
