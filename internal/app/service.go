package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/hostname"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxAppsPerUser    = 2
	defaultStatusSyncTimeout = 10 * time.Second
	recentDeployments        = 10
	syncConcurrency          = 8
)

type Config struct {
	MaxAppsPerUser    int
	StatusSyncTimeout time.Duration
}

// Service is the application layer. It is the only component that talks to both the
// repositories and the deployment platform.
type Service struct {
	users       domain.UserRepository
	apps        domain.ApplicationRepository
	deployments domain.DeploymentRepository
	platform    domain.Platform
	hostnames   *hostname.Generator
	metrics     *metrics.SyncMetrics
	clock       clockwork.Clock
	cfg         Config
	syncGroup   singleflight.Group
}

func NewService(
	users domain.UserRepository,
	apps domain.ApplicationRepository,
	deployments domain.DeploymentRepository,
	platform domain.Platform,
	hostnames *hostname.Generator,
	m *metrics.SyncMetrics,
	clock clockwork.Clock,
	cfg Config,
) *Service {
	if cfg.MaxAppsPerUser <= 0 {
		cfg.MaxAppsPerUser = defaultMaxAppsPerUser
	}
	if cfg.StatusSyncTimeout <= 0 {
		cfg.StatusSyncTimeout = defaultStatusSyncTimeout
	}
	if m == nil {
		m = metrics.NewSyncMetrics(prometheus.NewRegistry())
	}

	return &Service{
		users:       users,
		apps:        apps,
		deployments: deployments,
		platform:    platform,
		hostnames:   hostnames,
		metrics:     m,
		clock:       clock,
		cfg:         cfg,
	}
}

// PlatformError is a failed write to the deployment platform. The local record is kept.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsPlatformError reports whether err came from the deployment platform.
func IsPlatformError(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe)
}
