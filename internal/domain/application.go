package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the locally persisted lifecycle state of an application.
type State string

const (
	StatePending   State = "PENDING"
	StateDeploying State = "DEPLOYING"
	StateRunning   State = "RUNNING"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
	StateDeleted   State = "DELETED"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateDeploying, StateRunning, StateStopped, StateFailed, StateDeleted:
		return true
	default:
		return false
	}
}

// ApplicationType selects how the platform builds the repository.
type ApplicationType string

const (
	TypeNixpacks      ApplicationType = "NIXPACKS"
	TypeStatic        ApplicationType = "STATIC"
	TypeDockerfile    ApplicationType = "DOCKERFILE"
	TypeDockerCompose ApplicationType = "DOCKER_COMPOSE"
)

const (
	DefaultApplicationType = TypeNixpacks
	DefaultBranch          = "main"
	DefaultPort            = 3000
)

var buildPacks = map[ApplicationType]string{
	TypeNixpacks:      "nixpacks",
	TypeStatic:        "static",
	TypeDockerfile:    "dockerfile",
	TypeDockerCompose: "dockercompose",
}

// BuildPack returns the platform build pack for the type, falling back to nixpacks.
func (t ApplicationType) BuildPack() string {
	if bp, ok := buildPacks[t]; ok {
		return bp
	}
	return buildPacks[DefaultApplicationType]
}

func (t ApplicationType) Valid() bool {
	_, ok := buildPacks[t]
	return ok
}

type Application struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ExternalID string // empty until registered with the platform
	Name       string
	Domain     string // generated once at creation, never changed
	RepoURL    string
	Branch     string
	EnvVars    map[string]string
	Type       ApplicationType
	Port       int

	InstallCommand   string
	BuildCommand     string
	StartCommand     string
	BaseDirectory    string
	PublishDirectory string

	State          State
	LastDeployedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Deployments []Deployment
}

func (a *Application) Provisioned() bool { return a.ExternalID != "" }
func (a *Application) HasDomain() bool   { return a.Domain != "" }

// NewApplication holds the fields of an application row before it is inserted.
type NewApplication struct {
	UserID           uuid.UUID
	Name             string
	Domain           string
	RepoURL          string
	Branch           string
	EnvVars          map[string]string
	Type             ApplicationType
	Port             int
	InstallCommand   string
	BuildCommand     string
	StartCommand     string
	BaseDirectory    string
	PublishDirectory string

	// MaxActive caps the owner's non-deleted applications, checked atomically with the
	// insert. Zero means no cap.
	MaxActive int
}

// ApplicationPatch lists the mutable fields of an application. Nil leaves a field as is.
type ApplicationPatch struct {
	Name             *string
	EnvVars          map[string]string
	Branch           *string
	Port             *int
	InstallCommand   *string
	BuildCommand     *string
	StartCommand     *string
	BaseDirectory    *string
	PublishDirectory *string
}

type ApplicationRepository interface {
	Create(ctx context.Context, app NewApplication) (*Application, error)
	// GetForUser returns ErrApplicationNotFound when the application does not exist, is
	// deleted, or belongs to someone else.
	GetForUser(ctx context.Context, userID, appID uuid.UUID) (*Application, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Application, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	Update(ctx context.Context, appID uuid.UUID, patch ApplicationPatch) (*Application, error)
	UpdateState(ctx context.Context, appID uuid.UUID, state State) error
	SetExternalID(ctx context.Context, appID uuid.UUID, externalID string) error
	MarkDeployed(ctx context.Context, appID uuid.UUID, at time.Time) error
}
