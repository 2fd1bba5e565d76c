package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/1sec-project/netresponse/internal/metrics"
)

// RollbackAPI reverts a previously executed mitigation.
type RollbackAPI interface {
	RollbackAction(ctx context.Context, actionID string) (map[string]interface{}, error)
}

// RollbackOption configures a RollbackScheduler.
type RollbackOption func(*RollbackScheduler)

// WithRollbackUnit sets the duration one unit of RollbackAfter represents.
// Defaults to one second.
func WithRollbackUnit(d time.Duration) RollbackOption {
	return func(s *RollbackScheduler) {
		if d > 0 {
			s.unit = d
		}
	}
}

// WithRollbackTimeout bounds each rollback call.
func WithRollbackTimeout(d time.Duration) RollbackOption {
	return func(s *RollbackScheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRollbackMetrics records rollback outcomes.
func WithRollbackMetrics(m *metrics.Metrics) RollbackOption {
	return func(s *RollbackScheduler) { s.metrics = m }
}

// RollbackScheduler reverts completed mitigations once their rollback delay
// expires and records each reversal as a rollback action in the ledger.
type RollbackScheduler struct {
	client  RollbackAPI
	ledger  *Ledger
	logger  zerolog.Logger
	metrics *metrics.Metrics
	unit    time.Duration
	timeout time.Duration
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewRollbackScheduler creates a scheduler. Call Stop to release timers.
func NewRollbackScheduler(client RollbackAPI, ledger *Ledger, logger zerolog.Logger, opts ...RollbackOption) *RollbackScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RollbackScheduler{
		client:  client,
		ledger:  ledger,
		logger:  logger.With().Str("component", "rollback").Logger(),
		unit:    time.Second,
		timeout: 30 * time.Second,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms a rollback for a completed action. It returns false when the
// action is not eligible, is already scheduled, or the scheduler is stopped.
func (s *RollbackScheduler) Schedule(action *SecurityAction) bool {
	if action == nil || action.Status != ActionStatusCompleted || action.RollbackAfter <= 0 {
		return false
	}
	snapshot := action.Clone()
	delay := time.Duration(snapshot.RollbackAfter) * s.unit

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, exists := s.timers[snapshot.ID]; exists {
		return false
	}
	s.timers[snapshot.ID] = time.AfterFunc(delay, func() { s.fire(snapshot) })

	s.logger.Debug().
		Str("action_id", snapshot.ID).
		Str("device_id", snapshot.DeviceID).
		Dur("delay", delay).
		Msg("rollback scheduled")
	return true
}

// Cancel disarms the rollback for actionID. It reports whether a pending
// rollback was removed.
func (s *RollbackScheduler) Cancel(actionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[actionID]
	if !ok {
		return false
	}
	delete(s.timers, actionID)
	return t.Stop()
}

// Pending returns the number of armed rollbacks.
func (s *RollbackScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every pending rollback, cancels in-flight calls and waits
// for them to be recorded.
func (s *RollbackScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *RollbackScheduler) fire(original *SecurityAction) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, armed := s.timers[original.ID]; !armed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, original.ID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	rollback := NewSecurityAction(ActionRollback, original.DeviceID, original.ID, s.now(), map[string]interface{}{
		"rollback_of": original.ID,
		"device_id":   original.DeviceID,
	})

	result, err := s.client.RollbackAction(ctx, original.RemoteActionID())
	if err != nil {
		_ = rollback.Fail(err.Error(), s.now())
		s.logger.Error().Err(err).
			Str("action_id", original.ID).
			Str("device_id", original.DeviceID).
			Msg("rollback failed")
	} else {
		_ = rollback.Complete(result, s.now())
		s.logger.Info().
			Str("action_id", original.ID).
			Str("rollback_id", rollback.ID).
			Str("device_id", original.DeviceID).
			Msg("mitigation rolled back")
	}

	if err := s.ledger.Insert(rollback); err != nil {
		s.logger.Error().Err(err).Str("action_id", rollback.ID).Msg("failed to record rollback")
	}
	s.metrics.IncAction(string(rollback.Kind), string(rollback.Status))
	s.metrics.IncRollback(string(rollback.Status))
}
