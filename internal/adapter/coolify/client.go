// Package coolify implements domain.Platform against the Coolify REST API.
package coolify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/pscheid92/hostingroble/internal/platform/version"
	"github.com/sony/gobreaker"
)

const breakerName = "coolify"

type Config struct {
	BaseURL     string
	Token       string
	ProjectUUID string
	ServerUUID  string
	Environment string
	Timeout     time.Duration
}

type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.PlatformMetrics
}

var _ domain.Platform = (*Client)(nil)

func NewClient(cfg Config, m *metrics.PlatformMetrics) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	c := &Client{cfg: cfg, http: httpClient, metrics: m}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful:  countsAsSuccess,
		OnStateChange: c.onStateChange,
	})
	return c
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, domain.ErrPlatformNotRunning) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return false
}

func (c *Client) onStateChange(name string, from, to gobreaker.State) {
	slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
	c.metrics.RecordBreaker(name, to.String(), float64(to))
}

// BreakerState exposes the breaker for readiness checks.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, op string, call func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	start := time.Now()

	res, err := c.breaker.Execute(func() (any, error) {
		resp, err := call(c.http.R().SetContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("coolify %s: %w", op, err)
		}
		if resp.IsError() {
			return nil, newError(op, resp)
		}
		return resp, nil
	})

	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
		err = fmt.Errorf("coolify %s: %w", op, domain.ErrPlatformUnavailable)
	case err != nil:
		outcome = "error"
	}
	c.metrics.RequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return res.(*resty.Response), nil
}

func (c *Client) CreateApplication(ctx context.Context, cfg domain.PlatformAppConfig) (*domain.PlatformApp, error) {
	req := createApplicationRequest{
		Name:             cfg.Name,
		GitRepository:    cfg.RepoURL,
		GitBranch:        cfg.Branch,
		BuildPack:        cfg.BuildPack,
		Domains:          cfg.Domain,
		InstallCommand:   cfg.InstallCommand,
		BuildCommand:     cfg.BuildCommand,
		StartCommand:     cfg.StartCommand,
		BaseDirectory:    cfg.BaseDirectory,
		PublishDirectory: cfg.PublishDirectory,
		IsStatic:         cfg.Static,
		ProjectUUID:      c.cfg.ProjectUUID,
		ServerUUID:       c.cfg.ServerUUID,
		EnvironmentName:  c.cfg.Environment,
	}
	if cfg.Port > 0 {
		req.PortsExposes = strconv.Itoa(cfg.Port)
	}

	resp, err := c.do(ctx, "create", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).SetResult(&applicationResponse{}).Post("/applications")
	})
	if err != nil {
		return nil, err
	}

	out := resp.Result().(*applicationResponse)
	return &domain.PlatformApp{ID: out.ID, Name: out.Name, Status: out.Status}, nil
}

func (c *Client) GetApplication(ctx context.Context, externalID string) (*domain.PlatformApp, error) {
	resp, err := c.do(ctx, "status", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", externalID).SetResult(&applicationResponse{}).Get("/applications/{id}")
	})
	if err != nil {
		return nil, err
	}

	out := resp.Result().(*applicationResponse)
	return &domain.PlatformApp{ID: out.ID, Name: out.Name, Status: out.Status}, nil
}

// SetEnvironmentVariables sends one request per variable in key order and keeps going
// after a failure.
func (c *Client) SetEnvironmentVariables(ctx context.Context, externalID string, vars map[string]string) error {
	partial := &domain.PartialConfigError{Failed: map[string]error{}}

	for _, key := range slices.Sorted(maps.Keys(vars)) {
		body := environmentRequest{EnvironmentVariables: map[string]string{key: vars[key]}}
		_, err := c.do(ctx, "env", func(r *resty.Request) (*resty.Response, error) {
			return r.SetPathParam("id", externalID).SetBody(body).Patch("/applications/{id}/environment")
		})
		if err != nil {
			partial.Failed[key] = err
			continue
		}
		partial.Applied++
	}

	if len(partial.Failed) > 0 {
		return partial
	}
	return nil
}

func (c *Client) Deploy(ctx context.Context, externalID string) (*domain.PlatformDeployment, error) {
	resp, err := c.do(ctx, "deploy", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", externalID).SetResult(&deploymentResponse{}).Post("/applications/{id}/deploy")
	})
	if err != nil {
		return nil, err
	}

	out := resp.Result().(*deploymentResponse)
	return &domain.PlatformDeployment{ID: out.ID, Status: out.Status, CreatedAt: out.CreatedAt}, nil
}

func (c *Client) Stop(ctx context.Context, externalID string) error {
	return c.trigger(ctx, "stop", externalID)
}

func (c *Client) Restart(ctx context.Context, externalID string) error {
	return c.trigger(ctx, "restart", externalID)
}

func (c *Client) trigger(ctx context.Context, action, externalID string) error {
	_, err := c.do(ctx, action, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", externalID).Post("/applications/{id}/" + action)
	})
	return err
}

func (c *Client) Delete(ctx context.Context, externalID string) error {
	_, err := c.do(ctx, "delete", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", externalID).Delete("/applications/{id}")
	})
	return err
}

func (c *Client) GetLogs(ctx context.Context, externalID string, lines int) (string, error) {
	resp, err := c.do(ctx, "logs", func(r *resty.Request) (*resty.Response, error) {
		resp, err := r.SetPathParam("id", externalID).
			SetQueryParam("lines", strconv.Itoa(lines)).
			SetResult(&logsResponse{}).
			Get("/applications/{id}/logs")
		if err == nil && resp.IsError() {
			if apiErr := newError("logs", resp); apiErr.notRunning() {
				return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotRunning, apiErr.Message)
			}
		}
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return resp.Result().(*logsResponse).Logs, nil
}
