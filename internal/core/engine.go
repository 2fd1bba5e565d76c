package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/1sec-project/netresponse/internal/metrics"
	"github.com/1sec-project/netresponse/internal/mgmtapi"
)

// Version is reported in the User-Agent and by the CLI.
var Version = "0.3.0"

// Engine wires the API client, ledger, orchestrator and their supporting
// infrastructure into one running service.
type Engine struct {
	Config       *Config
	Logger       zerolog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Client       *mgmtapi.Client
	Ledger       *Ledger
	Orchestrator *Orchestrator
	Rollback     *RollbackScheduler
	Bus          *EventBus
	Intake       *Intake
	Archiver     *Archiver
	Logs         *LogRingBuffer

	logLevel    *LevelSwitch
	configPath  string
	metricsSrv  *http.Server
	metricsAddr string
	startTime   time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

const logBufferSize = 1000

// NewClient builds the management API client described by cfg.
func NewClient(cfg APIConfig, logger zerolog.Logger, m *metrics.Metrics) (*mgmtapi.Client, error) {
	opts := []mgmtapi.Option{
		mgmtapi.WithLogger(logger),
		mgmtapi.WithMetrics(m),
		mgmtapi.WithTimeout(parseDurationOr(cfg.Timeout, 30*time.Second)),
		mgmtapi.WithRequestDelay(parseDurationOr(cfg.RequestDelay, 100*time.Millisecond)),
		mgmtapi.WithDefaultRetryAfter(parseDurationOr(cfg.DefaultRetryAfter, 60*time.Second)),
		mgmtapi.WithMaxRetryAfter(parseDurationOr(cfg.MaxRetryAfter, mgmtapi.DefaultMaxRetryAfter)),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, mgmtapi.WithUserAgent(cfg.UserAgent))
	}
	return mgmtapi.New(cfg.BaseURL, cfg.APIKey, opts...)
}

// NewEngine creates the engine. Only an invalid API endpoint, credential or
// policy table fails construction; the bus is not touched until Start.
func NewEngine(cfg *Config) (*Engine, error) {
	logs := NewLogRingBuffer(logBufferSize)
	level := NewLevelSwitch(logWriter(cfg.Logging, os.Stdout, []io.Writer{logs}), ParseLogLevel(cfg.Logging.Level))

	e, err := newEngine(cfg, zerolog.New(level).With().Timestamp().Logger())
	if err != nil {
		return nil, err
	}
	e.Logs = logs
	e.logLevel = level
	return e, nil
}

func newEngine(cfg *Config, logger zerolog.Logger) (*Engine, error) {
	table, err := cfg.PolicyTable()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	client, err := NewClient(cfg.API, logger, m)
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	ledger := NewLedger(logger, nil)
	orchOpts := []OrchestratorOption{WithPolicyTable(table), WithOrchestratorMetrics(m)}

	var rollback *RollbackScheduler
	if cfg.Rollback.Enabled {
		rollback = NewRollbackScheduler(client, ledger, logger,
			WithRollbackTimeout(parseDurationOr(cfg.Rollback.Timeout, 30*time.Second)),
			WithRollbackMetrics(m),
		)
		orchOpts = append(orchOpts, WithRollbackScheduler(rollback))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Config:       cfg,
		Logger:       logger.With().Str("component", "engine").Logger(),
		Registry:     registry,
		Metrics:      m,
		Client:       client,
		Ledger:       ledger,
		Orchestrator: NewOrchestrator(client, ledger, logger, orchOpts...),
		Rollback:     rollback,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start connects the event bus and starts intake, archiving and the
// metrics endpoint as configured.
func (e *Engine) Start() error {
	e.Logger.Info().Str("api", e.Client.BaseURL()).Msg("starting netresponse engine")
	e.startTime = time.Now()

	bus, err := NewEventBus(&e.Config.Bus, e.Logger)
	if err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}
	e.Bus = bus
	e.Ledger.SetSink(bus)

	if e.Config.Archive.Enabled {
		archiver, err := NewArchiver(e.Config.Archive, bus, e.Logger)
		if err != nil {
			return fmt.Errorf("creating archiver: %w", err)
		}
		if err := archiver.Start(e.ctx); err != nil {
			return fmt.Errorf("starting archiver: %w", err)
		}
		e.Archiver = archiver
	}

	if e.Config.Intake.Enabled {
		intake, err := NewIntake(e.Config.Intake, e.Orchestrator, e.Logger, e.Metrics)
		if err != nil {
			return fmt.Errorf("creating intake: %w", err)
		}
		if err := intake.Start(e.ctx, bus); err != nil {
			return fmt.Errorf("starting intake: %w", err)
		}
		e.Intake = intake
	}

	if e.Config.Metrics.Enabled {
		if err := e.startMetricsServer(); err != nil {
			return err
		}
	}

	e.Logger.Info().
		Bool("intake", e.Intake != nil).
		Bool("archive", e.Archiver != nil).
		Bool("rollback", e.Rollback != nil).
		Msg("netresponse engine started")
	return nil
}

func (e *Engine) startMetricsServer() error {
	ln, err := net.Listen("tcp", e.Config.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", e.Config.Metrics.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if e.Bus == nil || !e.Bus.IsConnected() {
			http.Error(w, "event bus disconnected", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	if e.Logs != nil {
		mux.HandleFunc("/logs", e.handleLogs)
	}

	e.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := e.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	e.metricsAddr = ln.Addr().String()
	e.Logger.Info().Str("addr", e.metricsAddr).Msg("metrics endpoint listening")
	return nil
}

func (e *Engine) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	entries := e.LogEntries(limit)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":  entries,
		"total": len(entries),
	})
}

// Run starts the engine and blocks until a shutdown signal is received.
// SIGHUP reloads the hot-reloadable parts of the config file.
func (e *Engine) Run() error {
	if err := e.Start(); err != nil {
		_ = e.Shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, err := ReloadConfig(e, e.configPath); err != nil {
					e.Logger.Error().Err(err).Msg("config reload failed")
				}
				continue
			}
			e.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		case <-e.ctx.Done():
			e.Logger.Info().Msg("context cancelled")
		}
		return e.Shutdown()
	}
}

// Shutdown stops intake, pending rollbacks, the bus and the archive, in that order.
// In-flight mitigations are cancelled and recorded as failed.
func (e *Engine) Shutdown() error {
	e.Logger.Info().Msg("shutting down netresponse engine")
	e.cancel()

	if e.Intake != nil {
		e.Intake.Wait()
	}
	if e.Rollback != nil {
		if n := e.Rollback.Pending(); n > 0 {
			e.Logger.Warn().Int("pending", n).Msg("discarding scheduled rollbacks")
		}
		e.Rollback.Stop()
	}
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.metricsSrv.Shutdown(ctx); err != nil {
			e.Logger.Error().Err(err).Msg("error stopping metrics server")
		}
		cancel()
	}
	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			e.Logger.Error().Err(err).Msg("error closing event bus")
		}
	}
	if e.Archiver != nil {
		e.Archiver.Close()
	}
	if err := e.Client.Close(); err != nil {
		e.Logger.Error().Err(err).Msg("error closing API client")
	}

	e.Logger.Info().Dur("uptime", e.Uptime()).Msg("netresponse engine stopped")
	return nil
}

// Uptime returns how long the engine has been running, or zero before Start.
func (e *Engine) Uptime() time.Duration {
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}

// MetricsAddr returns the address the metrics endpoint listens on, or ""
// when it is not running.
func (e *Engine) MetricsAddr() string {
	return e.metricsAddr
}

// SetConfigPath records the file ReloadConfig re-reads on SIGHUP.
func (e *Engine) SetConfigPath(path string) {
	e.configPath = path
}

// SetLogLevel changes the minimum level of the engine's log output. It has
// no effect on engines built with an externally supplied logger.
func (e *Engine) SetLogLevel(level zerolog.Level) {
	if e.logLevel != nil {
		e.logLevel.SetLevel(level)
	}
}

// LogEntries returns up to n of the most recent log lines.
func (e *Engine) LogEntries(n int) []LogEntry {
	if e.Logs == nil {
		return []LogEntry{}
	}
	return e.Logs.GetEntries(n)
}

// Context returns the engine's context.
func (e *Engine) Context() context.Context {
	return e.ctx
}
