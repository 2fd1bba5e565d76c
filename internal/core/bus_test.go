package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	bus, err := NewEventBus(&BusConfig{
		Embedded: true,
		DataDir:  t.TempDir(),
		Port:     -1,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEventBus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestSubjects(t *testing.T) {
	if got := ThreatSubject(malwareEvent()); got != "sec.threats.critical" {
		t.Errorf("ThreatSubject = %q", got)
	}
	a := completedAction(ActionIsolate, "AP001", "e1", time.Now())
	if got := ActionSubject(a); got != "sec.actions.isolate.completed" {
		t.Errorf("ActionSubject = %q", got)
	}
}

func TestEventBus_PublishThreatDeduplicates(t *testing.T) {
	bus := newTestBus(t)
	if !bus.IsConnected() {
		t.Fatal("bus not connected")
	}

	received := make(chan *nats.Msg, 4)
	err := bus.Subscribe("sec.threats.>", "test-threats", func(msg *nats.Msg) {
		received <- msg
		_ = msg.Ack()
	}, nats.DeliverAll())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	e := malwareEvent()
	for i := 0; i < 2; i++ {
		if err := bus.PublishThreat(e); err != nil {
			t.Fatalf("PublishThreat: %v", err)
		}
	}

	select {
	case msg := <-received:
		if msg.Subject != "sec.threats.critical" {
			t.Errorf("subject = %q", msg.Subject)
		}
		decoded, err := UnmarshalThreatEvent(msg.Data)
		if err != nil || decoded.ID != e.ID {
			t.Errorf("decoded = %+v, err = %v", decoded, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("threat not delivered")
	}

	select {
	case msg := <-received:
		t.Errorf("duplicate publish delivered twice: %s", msg.Data)
	case <-time.After(200 * time.Millisecond):
	}

	if m := bus.GetMetrics(); m["threats_published"] != 2 || m["publish_failed"] != 0 {
		t.Errorf("metrics = %v", m)
	}
}

func TestEventBus_LedgerPublishesActions(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *nats.Msg, 1)
	if err := bus.Subscribe("sec.actions.>", "", func(msg *nats.Msg) {
		received <- msg
		_ = msg.Ack()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ledger := NewLedger(zerolog.Nop(), bus)
	a := completedAction(ActionQuarantine, "AP002", "e9", time.Now())
	if err := ledger.Insert(a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Subject != "sec.actions.quarantine.completed" {
			t.Errorf("subject = %q", msg.Subject)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			t.Fatalf("action payload: %v", err)
		}
		if decoded["action_id"] != a.ID || decoded["action_type"] != "quarantine" || decoded["device_id"] != "AP002" {
			t.Errorf("payload = %v", decoded)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("action not delivered")
	}
	if m := bus.GetMetrics(); m["actions_published"] != 1 {
		t.Errorf("metrics = %v", m)
	}
}
