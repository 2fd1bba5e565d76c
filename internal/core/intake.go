package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/1sec-project/netresponse/internal/metrics"
)

// threatEventSchema describes the wire form of a ThreatEvent. Events come
// from external detection sources and are checked before decoding.
const threatEventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["event_id", "threat_type", "severity", "device_id"],
  "properties": {
    "event_id":    {"type": "string", "minLength": 1, "maxLength": 128},
    "timestamp":   {"type": "string", "format": "date-time"},
    "threat_type": {"type": "string", "minLength": 1, "maxLength": 100},
    "severity":    {"type": "string", "pattern": "^(?i)(low|medium|high|critical)$"},
    "source_ip":   {"type": "string", "maxLength": 64},
    "source_mac":  {"type": "string", "maxLength": 64},
    "device_id":   {"type": "string", "minLength": 1, "maxLength": 128},
    "description": {"type": "string", "maxLength": 2000},
    "indicators":  {"type": "array", "items": {"type": "string", "maxLength": 256}, "maxItems": 100},
    "confidence":  {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func threatSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(threatEventSchema))
	})
	return compiledSchema, schemaErr
}

// ErrSchemaViolation marks threat payloads rejected by the schema.
var ErrSchemaViolation = errors.New("threat event violates schema")

// DecodeThreatEvent validates data against the threat event schema and
// decodes it.
func DecodeThreatEvent(data []byte) (*ThreatEvent, error) {
	schema, err := threatSchema()
	if err != nil {
		return nil, fmt.Errorf("loading threat schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
	}

	event, err := UnmarshalThreatEvent(data)
	if err != nil {
		return nil, fmt.Errorf("decoding threat event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// ThreatProcessor handles one decoded threat event.
type ThreatProcessor interface {
	ProcessThreatEvent(ctx context.Context, threat *ThreatEvent) ([]*SecurityAction, error)
}

// acker is the acknowledgement surface of a JetStream message.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

type intakeJob struct {
	data []byte
	msg  acker
}

// IntakeStats counts intake outcomes.
type IntakeStats struct {
	Received   int64 `json:"received"`
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Requeued   int64 `json:"requeued"`
}

// Intake consumes threat events from the bus and feeds them to a
// ThreatProcessor on a fixed pool of workers. Each event id is processed at
// most once while it remains in the dedup cache.
type Intake struct {
	cfg       IntakeConfig
	processor ThreatProcessor
	seen      *lru.Cache[string, bool]
	jobs      chan intakeJob
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup

	mu    sync.Mutex
	stats IntakeStats
}

// NewIntake creates an intake. It does not subscribe until Start.
func NewIntake(cfg IntakeConfig, processor ThreatProcessor, logger zerolog.Logger, m *metrics.Metrics) (*Intake, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 10000
	}
	if cfg.Durable == "" {
		cfg.Durable = "netresponse-intake"
	}
	if _, err := threatSchema(); err != nil {
		return nil, fmt.Errorf("loading threat schema: %w", err)
	}
	seen, err := lru.New[string, bool](cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	return &Intake{
		cfg:       cfg,
		processor: processor,
		seen:      seen,
		jobs:      make(chan intakeJob, cfg.Workers),
		logger:    logger.With().Str("component", "intake").Logger(),
		metrics:   m,
	}, nil
}

// Start launches the workers and subscribes to every threat subject. Workers
// exit when ctx is cancelled; call Wait afterwards.
func (in *Intake) Start(ctx context.Context, bus *EventBus) error {
	in.startWorkers(ctx)

	err := bus.Subscribe(threatSubjectPrefix+".>", in.cfg.Durable, func(msg *nats.Msg) {
		in.enqueue(ctx, intakeJob{data: msg.Data, msg: msg})
	}, nats.DeliverAll(), nats.MaxAckPending(in.cfg.Workers*4))
	if err != nil {
		return fmt.Errorf("intake subscribing to threats: %w", err)
	}

	in.logger.Info().
		Int("workers", in.cfg.Workers).
		Int("dedup_size", in.cfg.DedupSize).
		Str("durable", in.cfg.Durable).
		Msg("threat intake started")
	return nil
}

func (in *Intake) startWorkers(ctx context.Context) {
	for i := 0; i < in.cfg.Workers; i++ {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-in.jobs:
					in.handle(ctx, job)
				}
			}
		}()
	}
}

// enqueue blocks until a worker slot frees up. Messages that cannot be
// queued before shutdown are returned to the server for redelivery.
func (in *Intake) enqueue(ctx context.Context, job intakeJob) {
	select {
	case in.jobs <- job:
	case <-ctx.Done():
		_ = job.msg.Nak()
	}
}

// Wait blocks until every worker has exited.
func (in *Intake) Wait() {
	in.wg.Wait()
}

func (in *Intake) handle(ctx context.Context, job intakeJob) {
	in.count(func(s *IntakeStats) { s.Received++ })

	event, err := DecodeThreatEvent(job.data)
	if err != nil {
		in.logger.Warn().Err(err).Int("bytes", len(job.data)).Msg("rejecting threat event")
		in.count(func(s *IntakeStats) { s.Rejected++ })
		in.metrics.IncThreat("unknown", "rejected")
		_ = job.msg.Term()
		return
	}

	if dup, _ := in.seen.ContainsOrAdd(event.ID, true); dup {
		in.logger.Debug().Str("event_id", event.ID).Msg("duplicate threat event dropped")
		in.count(func(s *IntakeStats) { s.Duplicates++ })
		in.metrics.IncThreat(event.Severity.String(), "duplicate")
		_ = job.msg.Ack()
		return
	}

	_, err = in.processor.ProcessThreatEvent(ctx, event)
	if ctx.Err() != nil {
		// Cut short by shutdown: forget the id and let the server redeliver.
		in.seen.Remove(event.ID)
		in.count(func(s *IntakeStats) { s.Requeued++ })
		in.logger.Warn().Str("event_id", event.ID).Msg("threat event interrupted by shutdown, returned for redelivery")
		_ = job.msg.Nak()
		return
	}
	if err != nil {
		in.logger.Error().Err(err).Str("event_id", event.ID).Msg("threat event not processed")
		in.count(func(s *IntakeStats) { s.Rejected++ })
		_ = job.msg.Term()
		return
	}

	in.count(func(s *IntakeStats) { s.Processed++ })
	_ = job.msg.Ack()
}

func (in *Intake) count(update func(*IntakeStats)) {
	in.mu.Lock()
	update(&in.stats)
	in.mu.Unlock()
}

// Stats returns a snapshot of intake counters.
func (in *Intake) Stats() IntakeStats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}
