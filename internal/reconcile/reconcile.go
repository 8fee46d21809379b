// Package reconcile maps raw deployment-platform status strings onto local application
// states.
package reconcile

import (
	"strings"

	"github.com/pscheid92/hostingroble/internal/domain"
)

// Input is everything a reconciliation decision looks at.
type Input struct {
	Local         domain.State
	DomainPresent bool
	Raw           string
}

// Rule matches a lowercased raw status by prefix. Resolve picks the new state.
type Rule struct {
	Name     string
	Prefixes []string
	Resolve  func(in Input) domain.State
}

func (r Rule) matches(status string) bool {
	for _, p := range r.Prefixes {
		if strings.HasPrefix(status, p) {
			return true
		}
	}
	return false
}

func to(state domain.State) func(Input) domain.State {
	return func(Input) domain.State { return state }
}

// RuleExitedSticky names the rule that keeps a RUNNING application with a domain
// RUNNING when the platform reports it as exited. This can hide a crashed container.
const RuleExitedSticky = "exited_sticky"

// Rules is evaluated in order; the first matching rule wins.
var Rules = []Rule{
	{Name: "running", Prefixes: []string{"running"}, Resolve: to(domain.StateRunning)},
	{Name: "exited", Prefixes: []string{"exited"}, Resolve: func(in Input) domain.State {
		if in.DomainPresent && in.Local == domain.StateRunning {
			return domain.StateRunning
		}
		return domain.StateStopped
	}},
	{Name: "stopped", Prefixes: []string{"stopped"}, Resolve: to(domain.StateStopped)},
	{Name: "deploying", Prefixes: []string{"starting", "deploying"}, Resolve: to(domain.StateDeploying)},
	{Name: "restarting", Prefixes: []string{"restarting"}, Resolve: to(domain.StateRunning)},
	{Name: "failed", Prefixes: []string{"failed", "error"}, Resolve: to(domain.StateFailed)},
}

// Decision is the outcome of a reconciliation.
type Decision struct {
	State domain.State
	// Rule is the name of the matching rule, or "" when the status was empty or unknown.
	Rule string
}

// Changed reports whether the decision differs from the local state it started from.
func (d Decision) Changed(local domain.State) bool { return d.State != local }

// Decide runs the rule table. It never fails and never yields StateDeleted.
func Decide(in Input) Decision {
	if in.Raw == "" {
		return Decision{State: in.Local}
	}

	status := strings.ToLower(in.Raw)
	for _, rule := range Rules {
		if !rule.matches(status) {
			continue
		}
		d := Decision{State: rule.Resolve(in), Rule: rule.Name}
		if rule.Name == "exited" && d.State == domain.StateRunning {
			d.Rule = RuleExitedSticky
		}
		return d
	}

	return Decision{State: in.Local}
}

// Reconcile returns the state an application should have given the platform's raw status.
func Reconcile(local domain.State, domainPresent bool, raw string) domain.State {
	return Decide(Input{Local: local, DomainPresent: domainPresent, Raw: raw}).State
}
