package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ActionKind enumerates the mitigations that can be executed against a device.
type ActionKind string

const (
	ActionIsolate      ActionKind = "isolate"
	ActionQuarantine   ActionKind = "quarantine"
	ActionBlock        ActionKind = "block"
	ActionPolicyUpdate ActionKind = "policy_update"
	ActionRollback     ActionKind = "rollback"
)

// ActionStatus tracks a SecurityAction through pending → completed | failed.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ActionStatus) Terminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed
}

// ErrInvalidTransition is returned when a terminal action is resolved again.
var ErrInvalidTransition = errors.New("action already resolved")

// SecurityAction is the audit record of one executed mitigation.
type SecurityAction struct {
	ID            string                 `json:"action_id"`
	Kind          ActionKind             `json:"action_type"`
	DeviceID      string                 `json:"device_id"`
	CreatedAt     time.Time              `json:"timestamp"`
	Parameters    map[string]interface{} `json:"parameters"`
	RollbackAfter int                    `json:"rollback_timer,omitempty"`
	Status        ActionStatus           `json:"status"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// NewSecurityAction returns a pending action created at now. The id is
// derived from the creation time and the triggering identifier.
func NewSecurityAction(kind ActionKind, deviceID, triggerID string, now time.Time, params map[string]interface{}) *SecurityAction {
	if params == nil {
		params = make(map[string]interface{})
	}
	return &SecurityAction{
		ID:         fmt.Sprintf("%s_%d_%s", actionIDPrefix(kind), now.UnixNano(), triggerID),
		Kind:       kind,
		DeviceID:   deviceID,
		CreatedAt:  now.UTC(),
		Parameters: params,
		Status:     ActionStatusPending,
	}
}

func actionIDPrefix(kind ActionKind) string {
	if kind == ActionRollback {
		return "rollback"
	}
	return "action"
}

// Complete moves a pending action to completed and stores the API result.
func (a *SecurityAction) Complete(result map[string]interface{}, at time.Time) error {
	if a.Status != ActionStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, a.ID, a.Status)
	}
	a.Status = ActionStatusCompleted
	a.Result = result
	a.resolve(at)
	return nil
}

// Fail moves a pending action to failed and stores the error detail.
func (a *SecurityAction) Fail(detail string, at time.Time) error {
	if a.Status != ActionStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, a.ID, a.Status)
	}
	a.Status = ActionStatusFailed
	a.Error = detail
	a.resolve(at)
	return nil
}

func (a *SecurityAction) resolve(at time.Time) {
	t := at.UTC()
	a.ResolvedAt = &t
}

// RemoteActionID returns the action_id the management API assigned, or the
// local id when the result carries none.
func (a *SecurityAction) RemoteActionID() string {
	if id, ok := a.Result["action_id"].(string); ok && id != "" {
		return id
	}
	return a.ID
}

// Clone returns a copy that shares no top-level maps with a.
func (a *SecurityAction) Clone() *SecurityAction {
	c := *a
	c.Parameters = copyMap(a.Parameters)
	c.Result = copyMap(a.Result)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Marshal serializes the action to JSON.
func (a *SecurityAction) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
