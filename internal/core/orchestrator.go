package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/1sec-project/netresponse/internal/metrics"
	"github.com/1sec-project/netresponse/internal/mgmtapi"
)

// DeviceAPI is the subset of the management API client the orchestrator
// dispatches mitigations through.
type DeviceAPI interface {
	IsolateDevice(ctx context.Context, deviceID string, rollbackTimer *int) (map[string]interface{}, error)
	QuarantineDevice(ctx context.Context, deviceID, reason string) (map[string]interface{}, error)
	BlockThreat(ctx context.Context, req mgmtapi.BlockRequest) (map[string]interface{}, error)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPolicyTable replaces the default severity → response mapping.
func WithPolicyTable(t PolicyTable) OrchestratorOption {
	return func(o *Orchestrator) { o.policies = t }
}

// WithRollbackScheduler hands completed quarantine and block actions with a
// rollback delay to s. Isolation is reverted by the server through rollback_timer.
func WithRollbackScheduler(s *RollbackScheduler) OrchestratorOption {
	return func(o *Orchestrator) { o.rollback = s }
}

// WithOrchestratorMetrics records per-threat and per-action counters.
func WithOrchestratorMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator turns threat events into mitigations: it looks up the policy
// for the event's severity, executes it through the API client, and records
// the terminal outcome in the ledger. It never retries on its own; the
// client owns transport resilience.
type Orchestrator struct {
	client   DeviceAPI
	ledger   *Ledger
	mu       sync.RWMutex
	policies PolicyTable
	rollback *RollbackScheduler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

// NewOrchestrator creates an orchestrator with the default policy table.
func NewOrchestrator(client DeviceAPI, ledger *Ledger, logger zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		ledger:   ledger,
		policies: DefaultPolicyTable(),
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger returns the ledger actions are recorded in.
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// PolicyFor returns the configured policy for a severity.
func (o *Orchestrator) PolicyFor(s Severity) (Policy, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.policies.Lookup(s)
}

// Policies returns a copy of the active policy table.
func (o *Orchestrator) Policies() PolicyTable {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.policies
}

// SetPolicyTable swaps the active policy table. Events already past policy
// lookup finish under the table they started with.
func (o *Orchestrator) SetPolicyTable(t PolicyTable) {
	o.mu.Lock()
	o.policies = t
	o.mu.Unlock()
}

// ProcessThreatEvent applies policy to one threat and returns the actions
// taken: none for a monitor policy, otherwise exactly one completed or
// failed action. Mitigation failures are reported as failed actions, never
// as an error; the error return is reserved for a malformed event.
func (o *Orchestrator) ProcessThreatEvent(ctx context.Context, threat *ThreatEvent) ([]*SecurityAction, error) {
	if err := threat.Validate(); err != nil {
		return nil, err
	}

	policy, _ := o.PolicyFor(threat.Severity)
	kind, acts := policy.ActionKind()
	if !acts {
		o.logger.Info().
			Str("event_id", threat.ID).
			Str("threat_type", threat.ThreatType).
			Str("severity", threat.Severity.String()).
			Str("device_id", threat.DeviceID).
			Msg("threat monitored, no action taken")
		o.metrics.IncThreat(threat.Severity.String(), "monitored")
		return []*SecurityAction{}, nil
	}

	action := NewSecurityAction(kind, threat.DeviceID, threat.ID, o.stamp(), map[string]interface{}{
		"threat_id":  threat.ID,
		"severity":   threat.Severity.String(),
		"confidence": threat.Confidence,
	})
	action.RollbackAfter = policy.Duration

	result, err := o.execute(ctx, action, threat)
	if err != nil {
		_ = action.Fail(err.Error(), o.now())
		o.logger.Error().Err(err).
			Str("action_id", action.ID).
			Str("action", string(action.Kind)).
			Str("device_id", action.DeviceID).
			Str("event_id", threat.ID).
			Msg("mitigation failed")
	} else {
		_ = action.Complete(result, o.now())
		o.logger.Info().
			Str("action_id", action.ID).
			Str("action", string(action.Kind)).
			Str("device_id", action.DeviceID).
			Str("event_id", threat.ID).
			Int("rollback_timer", action.RollbackAfter).
			Msg("mitigation completed")
	}

	recorded := true
	if err := o.ledger.Insert(action); err != nil {
		recorded = false
		o.logger.Error().Err(err).Str("action_id", action.ID).Msg("failed to record action")
	}
	o.metrics.IncAction(string(action.Kind), string(action.Status))
	o.metrics.IncThreat(threat.Severity.String(), string(action.Status))

	// Isolation sends rollback_timer, so the server reverts it on its own.
	if recorded && action.Status == ActionStatusCompleted && action.RollbackAfter > 0 &&
		action.Kind != ActionIsolate && o.rollback != nil {
		o.rollback.Schedule(action)
	}

	return []*SecurityAction{action}, nil
}

// stamp returns the creation time for a new action. Stamps are strictly
// increasing so that action ids stay unique even when the same event is
// processed twice within one clock tick.
func (o *Orchestrator) stamp() time.Time {
	o.stampMu.Lock()
	defer o.stampMu.Unlock()
	t := o.now()
	if !t.After(o.lastStamp) {
		t = o.lastStamp.Add(time.Nanosecond)
	}
	o.lastStamp = t
	return t
}

// execute dispatches the action to the client call matching its kind.
func (o *Orchestrator) execute(ctx context.Context, action *SecurityAction, threat *ThreatEvent) (map[string]interface{}, error) {
	switch action.Kind {
	case ActionQuarantine:
		return o.client.QuarantineDevice(ctx, threat.DeviceID, quarantineReason(threat))
	case ActionIsolate:
		rollback := action.RollbackAfter
		return o.client.IsolateDevice(ctx, threat.DeviceID, &rollback)
	case ActionBlock:
		return o.client.BlockThreat(ctx, mgmtapi.BlockRequest{
			DeviceID:   threat.DeviceID,
			SourceIP:   threat.SourceIP,
			SourceMAC:  threat.SourceMAC,
			ThreatID:   threat.ID,
			Indicators: threat.Indicators,
			Reason:     quarantineReason(threat),
		})
	case ActionPolicyUpdate, ActionRollback:
		return nil, fmt.Errorf("action kind %q is not produced by threat policy", action.Kind)
	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func quarantineReason(threat *ThreatEvent) string {
	reason := "Automated response to " + threat.ThreatType
	if r := []rune(reason); len(r) > 200 {
		reason = string(r[:200])
	}
	return reason
}
