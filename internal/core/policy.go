package core

import (
	"fmt"

	"github.com/1sec-project/netresponse/internal/validate"
)

// PolicyAction is the outcome a severity maps to.
type PolicyAction string

const (
	PolicyMonitor    PolicyAction = "monitor"
	PolicyQuarantine PolicyAction = "quarantine"
	PolicyIsolate    PolicyAction = "isolate"
	PolicyBlock      PolicyAction = "block"
)

// Policy is the response selected for one severity.
type Policy struct {
	Action   PolicyAction `json:"action" yaml:"action"`
	Duration int          `json:"duration" yaml:"duration"` // rollback delay in seconds
}

// ActionKind maps the policy to the SecurityAction it produces. Monitor
// produces none.
func (p Policy) ActionKind() (ActionKind, bool) {
	switch p.Action {
	case PolicyQuarantine:
		return ActionQuarantine, true
	case PolicyIsolate:
		return ActionIsolate, true
	case PolicyBlock:
		return ActionBlock, true
	case PolicyMonitor:
		return "", false
	default:
		return "", false
	}
}

// Validate checks the action name and the rollback range.
func (p Policy) Validate() error {
	switch p.Action {
	case PolicyMonitor, PolicyQuarantine, PolicyIsolate, PolicyBlock:
	default:
		return fmt.Errorf("unknown policy action %q", p.Action)
	}
	if err := validate.RollbackTimer(p.Duration); err != nil {
		return err
	}
	return nil
}

// PolicyTable maps every severity to exactly one policy. Indexing by
// Severity makes the mapping total.
type PolicyTable [severityCount]Policy

// DefaultPolicyTable returns the built-in severity → response mapping.
func DefaultPolicyTable() PolicyTable {
	var t PolicyTable
	t[SeverityLow] = Policy{Action: PolicyMonitor, Duration: 300}
	t[SeverityMedium] = Policy{Action: PolicyQuarantine, Duration: 1800}
	t[SeverityHigh] = Policy{Action: PolicyIsolate, Duration: 3600}
	t[SeverityCritical] = Policy{Action: PolicyIsolate, Duration: 7200}
	return t
}

// Lookup returns the policy for s. ok is false only for an out-of-range severity.
func (t *PolicyTable) Lookup(s Severity) (Policy, bool) {
	if !s.Valid() {
		return Policy{}, false
	}
	return t[s], true
}

// Override replaces the policy for s after validating it.
func (t *PolicyTable) Override(s Severity, p Policy) error {
	if !s.Valid() {
		return fmt.Errorf("severity %d out of range", int(s))
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("policy for %s: %w", s, err)
	}
	t[s] = p
	return nil
}
