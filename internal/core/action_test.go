package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSecurityAction_ID(t *testing.T) {
	now := time.Unix(1700000000, 123)
	a := NewSecurityAction(ActionIsolate, "AP001", "malware_001", now, nil)

	if a.ID != "action_1700000000000000123_malware_001" {
		t.Errorf("ID = %q", a.ID)
	}
	if a.Status != ActionStatusPending {
		t.Errorf("Status = %q, want pending", a.Status)
	}
	if a.Parameters == nil {
		t.Error("Parameters should never be nil")
	}

	rb := NewSecurityAction(ActionRollback, "AP001", a.ID, now, nil)
	if !strings.HasPrefix(rb.ID, "rollback_") {
		t.Errorf("rollback ID = %q", rb.ID)
	}
}

func TestSecurityAction_Transitions(t *testing.T) {
	now := time.Now()

	done := NewSecurityAction(ActionQuarantine, "AP001", "e1", now, nil)
	if err := done.Complete(map[string]interface{}{"status": "quarantined"}, now); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != ActionStatusCompleted || done.ResolvedAt == nil {
		t.Errorf("after Complete: %+v", done)
	}
	if err := done.Fail("late", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail after Complete: err = %v", err)
	}
	if err := done.Complete(nil, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Complete: err = %v", err)
	}
	if done.Status != ActionStatusCompleted || done.Error != "" {
		t.Errorf("terminal action mutated: %+v", done)
	}

	failed := NewSecurityAction(ActionIsolate, "AP001", "e2", now, nil)
	if err := failed.Fail("Request timeout", now); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := failed.Complete(nil, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete after Fail: err = %v", err)
	}
	if failed.Status != ActionStatusFailed || failed.Error != "Request timeout" {
		t.Errorf("after Fail: %+v", failed)
	}
}

func TestSecurityAction_Terminal(t *testing.T) {
	if ActionStatusPending.Terminal() {
		t.Error("pending is not terminal")
	}
	if !ActionStatusCompleted.Terminal() || !ActionStatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestSecurityAction_RemoteActionID(t *testing.T) {
	a := NewSecurityAction(ActionIsolate, "AP001", "e1", time.Now(), nil)
	if a.RemoteActionID() != a.ID {
		t.Errorf("without result, RemoteActionID = %q", a.RemoteActionID())
	}
	a.Result = map[string]interface{}{"action_id": "iso-42"}
	if a.RemoteActionID() != "iso-42" {
		t.Errorf("RemoteActionID = %q, want iso-42", a.RemoteActionID())
	}
	a.Result = map[string]interface{}{"action_id": 7}
	if a.RemoteActionID() != a.ID {
		t.Errorf("non-string action_id should fall back, got %q", a.RemoteActionID())
	}
}

func TestSecurityAction_Clone(t *testing.T) {
	now := time.Now()
	a := NewSecurityAction(ActionIsolate, "AP001", "e1", now, map[string]interface{}{"threat_id": "e1"})
	_ = a.Complete(map[string]interface{}{"status": "isolated"}, now)

	c := a.Clone()
	c.Parameters["threat_id"] = "tampered"
	c.Result["status"] = "tampered"
	*c.ResolvedAt = time.Time{}

	if a.Parameters["threat_id"] != "e1" || a.Result["status"] != "isolated" || a.ResolvedAt.IsZero() {
		t.Errorf("clone shares state with original: %+v", a)
	}
}
