package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered threat level of a detected event.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical

	severityCount = int(SeverityCritical) + 1
)

// Severities lists every severity in ascending order.
var Severities = [severityCount]Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// ParseSeverity converts a case-insensitive severity name.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal severity %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ThreatEvent is a detected security condition produced by an external
// detection source. It is consumed once and never mutated.
type ThreatEvent struct {
	ID          string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ThreatType  string    `json:"threat_type"`
	Severity    Severity  `json:"severity"`
	SourceIP    string    `json:"source_ip,omitempty"`
	SourceMAC   string    `json:"source_mac,omitempty"`
	DeviceID    string    `json:"device_id"`
	Description string    `json:"description,omitempty"`
	Indicators  []string  `json:"indicators,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// ErrInvalidEvent wraps every structural problem found by ThreatEvent.Validate.
var ErrInvalidEvent = errors.New("invalid threat event")

// Validate checks the fields the orchestrator relies on. Device identifier
// syntax is left to the API client so that a bad id is recorded as a failed
// action rather than dropped.
func (e *ThreatEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing event_id", ErrInvalidEvent)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("%w: severity %d out of range", ErrInvalidEvent, int(e.Severity))
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidEvent, e.Confidence)
	}
	return nil
}

// Marshal serializes the event to JSON.
func (e *ThreatEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalThreatEvent deserializes a ThreatEvent from JSON.
func UnmarshalThreatEvent(data []byte) (*ThreatEvent, error) {
	var event ThreatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
