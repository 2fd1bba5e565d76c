package core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	threatSubjectPrefix = "sec.threats"
	actionSubjectPrefix = "sec.actions"
)

// EventBus wraps NATS JetStream: threat events arrive on sec.threats.> and
// recorded security actions are published on sec.actions.>.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	logger zerolog.Logger

	metrics *BusMetrics
}

// BusMetrics tracks event bus counters.
type BusMetrics struct {
	mu               sync.Mutex
	ThreatsPublished int64 `json:"threats_published"`
	ActionsPublished int64 `json:"actions_published"`
	PublishFailed    int64 `json:"publish_failed"`
}

// NewEventBus creates a new EventBus. If cfg.Embedded is true, it starts an
// embedded NATS server with JetStream enabled.
func NewEventBus(cfg *BusConfig, logger zerolog.Logger) (*EventBus, error) {
	bus := &EventBus{
		logger:  logger.With().Str("component", "event_bus").Logger(),
		metrics: &BusMetrics{},
	}

	url := cfg.URL
	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		ns, err := server.NewServer(&server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}

		ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}

		bus.ns = ns
		url = ns.ClientURL()
		bus.logger.Info().Str("url", url).Msg("embedded NATS server started")
	}

	nc, err := nats.Connect(url,
		nats.Name("netresponse"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		bus.shutdownServer()
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	streams := []*nats.StreamConfig{
		{
			Name:       "THREAT_EVENTS",
			Subjects:   []string{threatSubjectPrefix + ".>"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     24 * time.Hour * 7, // 7 days retention
			MaxBytes:   512 * 1024 * 1024,
			Storage:    nats.FileStorage,
			Discard:    nats.DiscardOld,
			Duplicates: 10 * time.Minute,
		},
		{
			Name:      "SECURITY_ACTIONS",
			Subjects:  []string{actionSubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 90, // audit trail: 90 days
			MaxBytes:  1024 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
	}
	for _, streamCfg := range streams {
		if err := bus.ensureStream(streamCfg); err != nil {
			bus.Close()
			return nil, err
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// ensureStream creates the stream, or updates it when it exists with a
// different configuration from a previous version.
func (b *EventBus) ensureStream(cfg *nats.StreamConfig) error {
	_, err := b.js.AddStream(cfg)
	if err == nil {
		return nil
	}
	if _, updateErr := b.js.UpdateStream(cfg); updateErr != nil {
		return fmt.Errorf("creating/updating stream %s: %w (original: %v)", cfg.Name, updateErr, err)
	}
	return nil
}

// ThreatSubject returns the subject a threat event is published on.
func ThreatSubject(event *ThreatEvent) string {
	return fmt.Sprintf("%s.%s", threatSubjectPrefix, event.Severity)
}

// ActionSubject returns the subject a security action is published on.
func ActionSubject(action *SecurityAction) string {
	return fmt.Sprintf("%s.%s.%s", actionSubjectPrefix, action.Kind, action.Status)
}

// PublishThreat publishes a threat event. The event id doubles as the
// JetStream message id, so a repeated publish within the duplicate window
// is discarded by the server.
func (b *EventBus) PublishThreat(event *ThreatEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling threat event: %w", err)
	}
	subject := ThreatSubject(event)
	if _, err := b.js.Publish(subject, data, nats.MsgId(event.ID)); err != nil {
		b.countFailure()
		return fmt.Errorf("publishing threat to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.ThreatsPublished++
	b.metrics.mu.Unlock()

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Msg("threat published")
	return nil
}

// PublishAction publishes a recorded security action. It implements AuditSink.
func (b *EventBus) PublishAction(action *SecurityAction) error {
	data, err := action.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling action: %w", err)
	}
	subject := ActionSubject(action)
	if _, err := b.js.Publish(subject, data, nats.MsgId(action.ID)); err != nil {
		b.countFailure()
		return fmt.Errorf("publishing action to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.ActionsPublished++
	b.metrics.mu.Unlock()
	return nil
}

func (b *EventBus) countFailure() {
	b.metrics.mu.Lock()
	b.metrics.PublishFailed++
	b.metrics.mu.Unlock()
}

// Subscribe creates a durable, manually acknowledged subscription. Without
// extra options only messages published after the consumer is created are
// delivered.
func (b *EventBus) Subscribe(subject, durableName string, handler nats.MsgHandler, opts ...nats.SubOpt) error {
	subOpts := []nats.SubOpt{nats.AckExplicit(), nats.ManualAck()}
	if len(opts) == 0 {
		subOpts = append(subOpts, nats.DeliverNew())
	}
	subOpts = append(subOpts, opts...)
	if durableName != "" {
		subOpts = append(subOpts, nats.Durable(durableName))
	}
	if _, err := b.js.Subscribe(subject, handler, subOpts...); err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.logger.Debug().Str("subject", subject).Str("durable", durableName).Msg("subscribed")
	return nil
}

// Close shuts down the event bus. Subscriptions are not unsubscribed:
// that would delete their durable consumers, and a restart must resume
// from the last acknowledged message.
func (b *EventBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	b.shutdownServer()
	return nil
}

func (b *EventBus) shutdownServer() {
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.ns = nil
		b.logger.Info().Msg("embedded NATS server stopped")
	}
}

// IsConnected returns true if the NATS connection is active.
func (b *EventBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *EventBus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"threats_published": b.metrics.ThreatsPublished,
		"actions_published": b.metrics.ActionsPublished,
		"publish_failed":    b.metrics.PublishFailed,
	}
}
