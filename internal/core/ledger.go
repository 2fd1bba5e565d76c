package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrDuplicateAction is returned when an action id is already recorded.
	ErrDuplicateAction = errors.New("action already recorded")
	// ErrActionNotTerminal is returned when a pending action is offered to the ledger.
	ErrActionNotTerminal = errors.New("action is not in a terminal state")
)

// AuditSink receives every recorded action for durable storage.
type AuditSink interface {
	PublishAction(action *SecurityAction) error
}

// ActionFilter narrows List results. Zero values match everything.
type ActionFilter struct {
	DeviceID string
	Kind     ActionKind
	Status   ActionStatus
	Limit    int
}

func (f ActionFilter) match(a *SecurityAction) bool {
	if f.DeviceID != "" && a.DeviceID != f.DeviceID {
		return false
	}
	if f.Kind != "" && a.Kind != f.Kind {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// LedgerStats summarizes the recorded actions.
type LedgerStats struct {
	Total    int                  `json:"total"`
	ByStatus map[ActionStatus]int `json:"by_status"`
	ByKind   map[ActionKind]int   `json:"by_kind"`
}

// Ledger is the in-memory audit record of every executed action, keyed by
// action id. Only terminal actions are accepted, and each id is recorded
// once. Retention is left to the AuditSink.
type Ledger struct {
	mu      sync.RWMutex
	actions map[string]*SecurityAction
	sink    AuditSink
	logger  zerolog.Logger
}

// NewLedger creates an empty ledger. sink may be nil.
func NewLedger(logger zerolog.Logger, sink AuditSink) *Ledger {
	return &Ledger{
		actions: make(map[string]*SecurityAction),
		sink:    sink,
		logger:  logger.With().Str("component", "ledger").Logger(),
	}
}

// SetSink attaches the durable audit sink once it becomes available.
func (l *Ledger) SetSink(sink AuditSink) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

// Insert records a terminal action. The ledger keeps its own copy.
func (l *Ledger) Insert(action *SecurityAction) error {
	if action == nil || action.ID == "" {
		return fmt.Errorf("inserting action: missing action id")
	}
	if !action.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrActionNotTerminal, action.ID, action.Status)
	}

	stored := action.Clone()

	l.mu.Lock()
	if _, exists := l.actions[stored.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateAction, stored.ID)
	}
	l.actions[stored.ID] = stored
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.PublishAction(stored.Clone()); err != nil {
			l.logger.Error().Err(err).Str("action_id", stored.ID).Msg("failed to publish action to audit sink")
		}
	}
	return nil
}

// Get returns a copy of the action recorded under id.
func (l *Ledger) Get(id string) (*SecurityAction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.actions[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// List returns copies of matching actions, newest first.
func (l *Ledger) List(filter ActionFilter) []*SecurityAction {
	l.mu.RLock()
	out := make([]*SecurityAction, 0, len(l.actions))
	for _, a := range l.actions {
		if filter.match(a) {
			out = append(out, a.Clone())
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.actions)
}

// Stats counts recorded actions by status and kind.
func (l *Ledger) Stats() LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := LedgerStats{
		Total:    len(l.actions),
		ByStatus: make(map[ActionStatus]int),
		ByKind:   make(map[ActionKind]int),
	}
	for _, a := range l.actions {
		stats.ByStatus[a.Status]++
		stats.ByKind[a.Kind]++
	}
	return stats
}
