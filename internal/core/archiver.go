package core

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ArchiveConfig holds audit archiver settings.
type ArchiveConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Dir            string `yaml:"dir"`
	RotateBytes    int64  `yaml:"rotate_bytes"`    // rotate file after N bytes (default 100MB)
	RotateInterval string `yaml:"rotate_interval"` // rotate after duration (default "1h")
	Compress       bool   `yaml:"compress"`
	IncludeThreats bool   `yaml:"include_threats"` // also archive raw threat events
}

// DefaultArchiveConfig returns defaults for the audit archiver.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:        true,
		Dir:            "./data/audit",
		RotateBytes:    100 * 1024 * 1024, // 100MB
		RotateInterval: "1h",
		Compress:       true,
	}
}

// Archiver consumes recorded security actions from JetStream and writes them
// to NDJSON files, the durable form of the ledger.
type Archiver struct {
	cfg    ArchiveConfig
	bus    *EventBus
	logger zerolog.Logger

	mu             sync.Mutex
	currentFile    *os.File
	currentGz      *gzip.Writer
	currentPath    string
	currentBytes   int64
	rotateInterval time.Duration
	fileOpenedAt   time.Time

	actionsArchived int64
	threatsArchived int64
	filesRotated    int64
	bytesWritten    int64
}

// NewArchiver creates an audit archiver.
func NewArchiver(cfg ArchiveConfig, bus *EventBus, logger zerolog.Logger) (*Archiver, error) {
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("creating archive dir %s: %w", cfg.Dir, err)
	}

	interval := parseDurationOr(cfg.RotateInterval, time.Hour)
	if interval <= 0 {
		interval = time.Hour
	}
	if cfg.RotateBytes <= 0 {
		cfg.RotateBytes = 100 * 1024 * 1024
	}

	return &Archiver{
		cfg:            cfg,
		bus:            bus,
		logger:         logger.With().Str("component", "archiver").Logger(),
		rotateInterval: interval,
	}, nil
}

// Start subscribes to actions (and optionally threats) with separate
// durable consumers and runs the rotation ticker until ctx is done.
func (a *Archiver) Start(ctx context.Context) error {
	if err := a.bus.Subscribe(actionSubjectPrefix+".>", "netresponse-audit-actions", func(msg *nats.Msg) {
		a.writeRecord("action", msg.Data)
		_ = msg.Ack()
	}, nats.DeliverAll()); err != nil {
		return fmt.Errorf("archiver subscribing to actions: %w", err)
	}

	if a.cfg.IncludeThreats {
		if err := a.bus.Subscribe(threatSubjectPrefix+".>", "netresponse-audit-threats", func(msg *nats.Msg) {
			a.writeRecord("threat", msg.Data)
			_ = msg.Ack()
		}); err != nil {
			return fmt.Errorf("archiver subscribing to threats: %w", err)
		}
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.Close()
				return
			case <-ticker.C:
				a.rotateIfStale()
			}
		}
	}()

	a.logger.Info().
		Str("dir", a.cfg.Dir).
		Str("rotate_interval", a.rotateInterval.String()).
		Int64("rotate_bytes", a.cfg.RotateBytes).
		Bool("compress", a.cfg.Compress).
		Msg("audit archiver started")

	return nil
}

// archiveRecord is the NDJSON envelope written to archive files.
type archiveRecord struct {
	Type      string          `json:"type"` // "action" or "threat"
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

func (a *Archiver) writeRecord(recordType string, data []byte) {
	if !json.Valid(data) {
		a.logger.Warn().Str("type", recordType).Msg("skipping non-JSON archive payload")
		return
	}
	line, err := json.Marshal(archiveRecord{
		Type:      recordType,
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(data),
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to marshal archive record")
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentFile == nil {
		if err := a.openFileLocked(); err != nil {
			a.logger.Error().Err(err).Msg("failed to open archive file")
			return
		}
	}

	var n int
	if a.currentGz != nil {
		n, err = a.currentGz.Write(line)
	} else {
		n, err = a.currentFile.Write(line)
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to write archive record")
		return
	}

	a.currentBytes += int64(n)
	a.bytesWritten += int64(n)

	switch recordType {
	case "action":
		a.actionsArchived++
	case "threat":
		a.threatsArchived++
	}

	if a.currentBytes >= a.cfg.RotateBytes {
		a.rotateFileLocked()
	}
}

func (a *Archiver) openFileLocked() error {
	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	ext := ".ndjson"
	if a.cfg.Compress {
		ext = ".ndjson.gz"
	}
	filename := fmt.Sprintf("netresponse-audit-%s%s", ts, ext)
	path := filepath.Join(a.cfg.Dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return err
	}

	a.currentFile = f
	a.currentPath = path
	a.currentBytes = 0
	a.fileOpenedAt = time.Now()

	if a.cfg.Compress {
		gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
		if err != nil {
			f.Close()
			a.currentFile = nil
			return err
		}
		a.currentGz = gz
	}

	a.logger.Debug().Str("file", filename).Msg("opened archive file")
	return nil
}

func (a *Archiver) rotateIfStale() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentFile != nil && time.Since(a.fileOpenedAt) >= a.rotateInterval {
		a.rotateFileLocked()
	}
}

func (a *Archiver) rotateFileLocked() {
	a.closeFileLocked()
	a.filesRotated++
}

// Close flushes and closes the current archive file.
func (a *Archiver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeFileLocked()
}

func (a *Archiver) closeFileLocked() {
	if a.currentGz != nil {
		if err := a.currentGz.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to flush archive file")
		}
		a.currentGz = nil
	}
	if a.currentFile != nil {
		if err := a.currentFile.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close archive file")
		}
		a.currentFile = nil
	}
}

// Status returns archiver counters.
func (a *Archiver) Status() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]interface{}{
		"enabled":          a.cfg.Enabled,
		"dir":              a.cfg.Dir,
		"actions_archived": a.actionsArchived,
		"threats_archived": a.threatsArchived,
		"files_rotated":    a.filesRotated,
		"bytes_written":    a.bytesWritten,
		"current_file":     filepath.Base(a.currentPath),
		"current_bytes":    a.currentBytes,
		"compress":         a.cfg.Compress,
	}
}
