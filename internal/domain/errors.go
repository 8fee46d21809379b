package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrApplicationNotFound = errors.New("application not found")
	ErrApplicationLimit    = errors.New("application limit reached")
	ErrNotProvisioned      = errors.New("application is not provisioned on the platform")

	// ErrPlatformNotRunning is returned by Platform.GetLogs while the application has no
	// running container yet.
	ErrPlatformNotRunning = errors.New("application is not running")
	// ErrPlatformUnavailable is returned while the platform circuit breaker is open.
	ErrPlatformUnavailable = errors.New("deployment platform unavailable")
)

// PartialConfigError reports environment variables that could not be pushed to the
// platform. Variables missing from Failed were applied and are not rolled back.
type PartialConfigError struct {
	Applied int
	Failed  map[string]error
}

func (e *PartialConfigError) Error() string {
	keys := e.FailedKeys()
	return fmt.Sprintf("failed to set %d of %d environment variables: %s",
		len(keys), len(keys)+e.Applied, strings.Join(keys, ", "))
}

// Unwrap exposes the per-variable causes to errors.Is and errors.As.
func (e *PartialConfigError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, key := range e.FailedKeys() {
		errs = append(errs, e.Failed[key])
	}
	return errs
}

// FailedKeys returns the names of the variables that failed, sorted.
func (e *PartialConfigError) FailedKeys() []string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Total reports whether no variable was applied at all.
func (e *PartialConfigError) Total() bool {
	return e.Applied == 0 && len(e.Failed) > 0
}
