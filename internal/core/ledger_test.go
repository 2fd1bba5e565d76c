package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu      sync.Mutex
	actions []*SecurityAction
	err     error
}

func (s *recordingSink) PublishAction(a *SecurityAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

func completedAction(kind ActionKind, deviceID, trigger string, at time.Time) *SecurityAction {
	a := NewSecurityAction(kind, deviceID, trigger, at, map[string]interface{}{"threat_id": trigger})
	_ = a.Complete(map[string]interface{}{"status": "ok"}, at)
	return a
}

func TestLedger_InsertAndGet(t *testing.T) {
	sink := &recordingSink{}
	l := NewLedger(zerolog.Nop(), sink)

	a := completedAction(ActionIsolate, "AP001", "e1", time.Now())
	if err := l.Insert(a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := l.Get(a.ID)
	if !ok {
		t.Fatal("inserted action not found")
	}
	if got.Kind != ActionIsolate || got.Status != ActionStatusCompleted {
		t.Errorf("Get = %+v", got)
	}
	if sink.count() != 1 {
		t.Errorf("sink received %d actions, want 1", sink.count())
	}

	got.Parameters["threat_id"] = "tampered"
	again, _ := l.Get(a.ID)
	if again.Parameters["threat_id"] != "e1" {
		t.Error("Get must return a copy")
	}

	a.Parameters["threat_id"] = "tampered-after-insert"
	again, _ = l.Get(a.ID)
	if again.Parameters["threat_id"] != "e1" {
		t.Error("ledger must not share state with the inserted action")
	}

	if _, ok := l.Get("missing"); ok {
		t.Error("Get on unknown id should report false")
	}
}

func TestLedger_RejectsDuplicateAndPending(t *testing.T) {
	l := NewLedger(zerolog.Nop(), nil)
	a := completedAction(ActionQuarantine, "AP001", "e1", time.Now())
	if err := l.Insert(a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.Insert(a); !errors.Is(err, ErrDuplicateAction) {
		t.Errorf("duplicate Insert: err = %v", err)
	}

	pending := NewSecurityAction(ActionIsolate, "AP002", "e2", time.Now(), nil)
	if err := l.Insert(pending); !errors.Is(err, ErrActionNotTerminal) {
		t.Errorf("pending Insert: err = %v", err)
	}
	if err := l.Insert(nil); err == nil {
		t.Error("nil Insert should fail")
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestLedger_SinkErrorDoesNotFailInsert(t *testing.T) {
	sink := &recordingSink{err: errors.New("bus down")}
	l := NewLedger(zerolog.Nop(), sink)
	if err := l.Insert(completedAction(ActionIsolate, "AP001", "e1", time.Now())); err != nil {
		t.Fatalf("Insert should ignore sink failures, got %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestLedger_ListFilterAndOrder(t *testing.T) {
	l := NewLedger(zerolog.Nop(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = l.Insert(completedAction(ActionIsolate, "AP001", "e1", base))
	_ = l.Insert(completedAction(ActionQuarantine, "AP002", "e2", base.Add(time.Minute)))
	failed := NewSecurityAction(ActionIsolate, "AP001", "e3", base.Add(2*time.Minute), nil)
	_ = failed.Fail("Request timeout", base.Add(2*time.Minute))
	_ = l.Insert(failed)

	all := l.List(ActionFilter{})
	if len(all) != 3 {
		t.Fatalf("List() returned %d, want 3", len(all))
	}
	if all[0].ID != failed.ID {
		t.Errorf("newest first: got %s", all[0].ID)
	}

	if got := l.List(ActionFilter{DeviceID: "AP001"}); len(got) != 2 {
		t.Errorf("device filter returned %d, want 2", len(got))
	}
	if got := l.List(ActionFilter{Kind: ActionQuarantine}); len(got) != 1 || got[0].DeviceID != "AP002" {
		t.Errorf("kind filter = %+v", got)
	}
	if got := l.List(ActionFilter{Status: ActionStatusFailed}); len(got) != 1 || got[0].Error != "Request timeout" {
		t.Errorf("status filter = %+v", got)
	}
	if got := l.List(ActionFilter{Limit: 2}); len(got) != 2 {
		t.Errorf("limit returned %d, want 2", len(got))
	}

	stats := l.Stats()
	if stats.Total != 3 || stats.ByStatus[ActionStatusCompleted] != 2 || stats.ByKind[ActionIsolate] != 2 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestLedger_ConcurrentInserts(t *testing.T) {
	l := NewLedger(zerolog.Nop(), &recordingSink{})
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := completedAction(ActionIsolate, "AP001", fmt.Sprintf("e%d", i), time.Now())
			if err := l.Insert(a); err != nil {
				t.Errorf("Insert %d: %v", i, err)
			}
			l.List(ActionFilter{Limit: 5})
		}(i)
	}
	wg.Wait()

	if l.Len() != n {
		t.Errorf("Len = %d, want %d", l.Len(), n)
	}
}
