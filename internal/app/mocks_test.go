package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/hostingroble/internal/domain"
)

// --- In-memory repositories ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[uuid.UUID]*domain.User{}}
}

func (r *memUserRepo) add(name string) *domain.User {
	u, _ := r.Create(context.Background(), fmt.Sprintf("%s@example.com", uuid.NewString()), name, "hash")
	return u
}

func (r *memUserRepo) Create(_ context.Context, email, name, passwordHash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}
	u := &domain.User{ID: uuid.New(), Email: email, Name: name, PasswordHash: passwordHash}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

type memApplicationRepo struct {
	mu               sync.Mutex
	apps             map[uuid.UUID]*domain.Application
	updateStateCalls int
	updateStateErr   error
	seq              int
}

func newMemApplicationRepo() *memApplicationRepo {
	return &memApplicationRepo{apps: map[uuid.UUID]*domain.Application{}}
}

func (r *memApplicationRepo) Create(_ context.Context, in domain.NewApplication) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in.MaxActive > 0 {
		active := 0
		for _, app := range r.apps {
			if app.UserID == in.UserID && app.State != domain.StateDeleted {
				active++
			}
		}
		if active >= in.MaxActive {
			return nil, domain.ErrApplicationLimit
		}
	}
	r.seq++
	app := &domain.Application{
		ID:               uuid.New(),
		UserID:           in.UserID,
		Name:             in.Name,
		Domain:           in.Domain,
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
		State:            domain.StatePending,
		CreatedAt:        time.Unix(int64(r.seq), 0),
	}
	r.apps[app.ID] = app
	cp := *app
	return &cp, nil
}

// get returns a snapshot of the stored row, deleted or not.
func (r *memApplicationRepo) get(appID uuid.UUID) domain.Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.apps[appID]
}

func (r *memApplicationRepo) GetForUser(_ context.Context, userID, appID uuid.UUID) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[appID]
	if !ok || app.UserID != userID || app.State == domain.StateDeleted {
		return nil, domain.ErrApplicationNotFound
	}
	cp := *app
	return &cp, nil
}

func (r *memApplicationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Application
	for _, app := range r.apps {
		if app.UserID == userID && app.State != domain.StateDeleted {
			out = append(out, *app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memApplicationRepo) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	apps, _ := r.ListByUser(ctx, userID)
	return len(apps), nil
}

func (r *memApplicationRepo) Update(_ context.Context, appID uuid.UUID, patch domain.ApplicationPatch) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[appID]
	if !ok || app.State == domain.StateDeleted {
		return nil, domain.ErrApplicationNotFound
	}
	if patch.Name != nil {
		app.Name = *patch.Name
	}
	if patch.EnvVars != nil {
		app.EnvVars = patch.EnvVars
	}
	if patch.Branch != nil {
		app.Branch = *patch.Branch
	}
	if patch.Port != nil {
		app.Port = *patch.Port
	}
	cp := *app
	return &cp, nil
}

func (r *memApplicationRepo) UpdateState(_ context.Context, appID uuid.UUID, state domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateStateCalls++
	if r.updateStateErr != nil {
		return r.updateStateErr
	}
	app, ok := r.apps[appID]
	if !ok {
		return domain.ErrApplicationNotFound
	}
	app.State = state
	return nil
}

func (r *memApplicationRepo) stateUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateStateCalls
}

func (r *memApplicationRepo) SetExternalID(_ context.Context, appID uuid.UUID, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[appID].ExternalID = externalID
	return nil
}

func (r *memApplicationRepo) MarkDeployed(_ context.Context, appID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[appID].LastDeployedAt = &at
	return nil
}

type memDeploymentRepo struct {
	mu          sync.Mutex
	deployments []domain.Deployment
}

func (r *memDeploymentRepo) Create(_ context.Context, applicationID uuid.UUID, version string, status domain.DeploymentStatus) (*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := domain.Deployment{ID: uuid.New(), ApplicationID: applicationID, Version: version, Status: status}
	r.deployments = append(r.deployments, d)
	return &d, nil
}

func (r *memDeploymentRepo) ListRecent(_ context.Context, applicationID uuid.UUID, limit int) ([]domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deployment
	for i := len(r.deployments) - 1; i >= 0 && len(out) < limit; i-- {
		if r.deployments[i].ApplicationID == applicationID {
			out = append(out, r.deployments[i])
		}
	}
	return out, nil
}

func (r *memDeploymentRepo) SettleInProgress(_ context.Context, applicationID uuid.UUID, status domain.DeploymentStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.deployments {
		d := &r.deployments[i]
		if d.ApplicationID == applicationID && d.Status == domain.DeploymentInProgress {
			d.Status = status
			n++
		}
	}
	return n, nil
}

// --- Platform mock ---

type mockPlatform struct {
	mu    sync.Mutex
	calls []string

	createFn  func(ctx context.Context, cfg domain.PlatformAppConfig) (*domain.PlatformApp, error)
	getFn     func(ctx context.Context, externalID string) (*domain.PlatformApp, error)
	setEnvFn  func(ctx context.Context, externalID string, vars map[string]string) error
	deployFn  func(ctx context.Context, externalID string) (*domain.PlatformDeployment, error)
	stopFn    func(ctx context.Context, externalID string) error
	restartFn func(ctx context.Context, externalID string) error
	deleteFn  func(ctx context.Context, externalID string) error
	logsFn    func(ctx context.Context, externalID string, lines int) (string, error)
}

func (m *mockPlatform) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockPlatform) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockPlatform) CreateApplication(ctx context.Context, cfg domain.PlatformAppConfig) (*domain.PlatformApp, error) {
	m.record("create")
	if m.createFn != nil {
		return m.createFn(ctx, cfg)
	}
	return &domain.PlatformApp{ID: "ext-" + cfg.Name}, nil
}

func (m *mockPlatform) GetApplication(ctx context.Context, externalID string) (*domain.PlatformApp, error) {
	m.record("get")
	if m.getFn != nil {
		return m.getFn(ctx, externalID)
	}
	return &domain.PlatformApp{ID: externalID}, nil
}

func (m *mockPlatform) SetEnvironmentVariables(ctx context.Context, externalID string, vars map[string]string) error {
	m.record("env")
	if m.setEnvFn != nil {
		return m.setEnvFn(ctx, externalID, vars)
	}
	return nil
}

func (m *mockPlatform) Deploy(ctx context.Context, externalID string) (*domain.PlatformDeployment, error) {
	m.record("deploy")
	if m.deployFn != nil {
		return m.deployFn(ctx, externalID)
	}
	return &domain.PlatformDeployment{ID: "dep-1", Status: "queued"}, nil
}

func (m *mockPlatform) Stop(ctx context.Context, externalID string) error {
	m.record("stop")
	if m.stopFn != nil {
		return m.stopFn(ctx, externalID)
	}
	return nil
}

func (m *mockPlatform) Restart(ctx context.Context, externalID string) error {
	m.record("restart")
	if m.restartFn != nil {
		return m.restartFn(ctx, externalID)
	}
	return nil
}

func (m *mockPlatform) Delete(ctx context.Context, externalID string) error {
	m.record("delete")
	if m.deleteFn != nil {
		return m.deleteFn(ctx, externalID)
	}
	return nil
}

func (m *mockPlatform) GetLogs(ctx context.Context, externalID string, lines int) (string, error) {
	m.record("logs")
	if m.logsFn != nil {
		return m.logsFn(ctx, externalID, lines)
	}
	return "", nil
}

// statusSequence makes GetApplication report the given statuses in order, repeating the last.
func statusSequence(statuses ...string) func(context.Context, string) (*domain.PlatformApp, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, externalID string) (*domain.PlatformApp, error) {
		mu.Lock()
		defer mu.Unlock()
		status := statuses[min(i, len(statuses)-1)]
		i++
		return &domain.PlatformApp{ID: externalID, Status: status}, nil
	}
}
