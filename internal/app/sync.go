package app

import (
	"context"
	"log/slog"

	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/platform/correlation"
	"github.com/pscheid92/hostingroble/internal/reconcile"
	"golang.org/x/sync/errgroup"
)

// syncStatuses syncs every provisioned application in place, in parallel. It never fails.
func (s *Service) syncStatuses(ctx context.Context, apps []domain.Application) {
	var g errgroup.Group
	g.SetLimit(syncConcurrency)

	for i := range apps {
		if !apps[i].Provisioned() {
			continue
		}
		app := &apps[i]
		g.Go(func() error {
			s.syncStatus(ctx, app)
			return nil
		})
	}
	_ = g.Wait()
}

// syncStatus reconciles app.State with the platform status. Concurrent syncs of the same
// application share one platform call; on any error the stale local state is kept.
func (s *Service) syncStatus(ctx context.Context, app *domain.Application) {
	if !app.Provisioned() {
		return
	}

	local := app.State
	result, _, _ := s.syncGroup.Do(app.ID.String(), func() (any, error) {
		syncCtx, cancel := context.WithTimeout(correlation.Detach(ctx), s.cfg.StatusSyncTimeout)
		defer cancel()
		return s.fetchAndReconcile(syncCtx, app, local), nil
	})

	if state, ok := result.(domain.State); ok {
		app.State = state
	}
}

func (s *Service) fetchAndReconcile(ctx context.Context, app *domain.Application, local domain.State) domain.State {
	log := slog.With("application_id", app.ID.String(), "external_id", app.ExternalID)

	remote, err := s.platform.GetApplication(ctx, app.ExternalID)
	if err != nil {
		s.metrics.Outcomes.WithLabelValues(metrics.SyncFetchError).Inc()
		log.WarnContext(ctx, "Status sync failed, serving local state", "state", local, "error", err)
		return local
	}

	decision := reconcile.Decide(reconcile.Input{
		Local:         local,
		DomainPresent: app.HasDomain(),
		Raw:           remote.Status,
	})

	if decision.Rule == reconcile.RuleExitedSticky {
		s.metrics.StickyRunning.Inc()
		log.WarnContext(ctx, "Platform reports exited, keeping RUNNING", "raw_status", remote.Status, "domain", app.Domain)
	}

	if !decision.Changed(local) {
		s.metrics.Outcomes.WithLabelValues(metrics.SyncUnchanged).Inc()
		return local
	}

	if err := s.apps.UpdateState(ctx, app.ID, decision.State); err != nil {
		s.metrics.Outcomes.WithLabelValues(metrics.SyncPersistError).Inc()
		log.ErrorContext(ctx, "Failed to persist synced state", "from", local, "to", decision.State, "error", err)
		return local
	}
	s.metrics.Outcomes.WithLabelValues(metrics.SyncChanged).Inc()
	log.InfoContext(ctx, "Application state synced", "from", local, "to", decision.State, "raw_status", remote.Status, "rule", decision.Rule)

	s.settleDeployments(ctx, app, decision.State)
	return decision.State
}

// settleDeployments closes in-progress deployment records once the application reached
// a terminal outcome.
func (s *Service) settleDeployments(ctx context.Context, app *domain.Application, state domain.State) {
	var status domain.DeploymentStatus
	switch state {
	case domain.StateRunning:
		status = domain.DeploymentSuccess
	case domain.StateFailed:
		status = domain.DeploymentFailed
	default:
		return
	}

	if _, err := s.deployments.SettleInProgress(ctx, app.ID, status); err != nil {
		slog.ErrorContext(ctx, "Failed to settle deployments", "application_id", app.ID.String(), "status", status, "error", err)
	}
}
