package core

import (
	"bytes"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogRingBuffer_Empty(t *testing.T) {
	b := NewLogRingBuffer(100)
	if entries := b.GetEntries(10); len(entries) != 0 {
		t.Errorf("new buffer should be empty, got %d entries", len(entries))
	}
}

func TestLogRingBuffer_ParsesZerologLines(t *testing.T) {
	b := NewLogRingBuffer(10)
	logger := zerolog.New(b).With().Str("component", "orchestrator").Logger()
	logger.Warn().Str("device_id", "AP001").Msg("mitigation failed")

	entries := b.GetEntries(1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "warn" || e.Component != "orchestrator" || e.Message != "mitigation failed" {
		t.Errorf("entry = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestLogRingBuffer_KeepsPlainLines(t *testing.T) {
	b := NewLogRingBuffer(10)
	n, err := b.Write([]byte("not json\n"))
	if err != nil || n != 9 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	e := b.GetEntries(1)[0]
	if e.Raw != "not json" || e.Message != "not json" || e.Level != "" {
		t.Errorf("entry = %+v", e)
	}
}

func TestLogRingBuffer_GetEntriesBounds(t *testing.T) {
	b := NewLogRingBuffer(100)
	for i := 0; i < 5; i++ {
		b.Write([]byte("entry"))
	}
	if got := len(b.GetEntries(3)); got != 3 {
		t.Errorf("GetEntries(3) = %d entries", got)
	}
	if got := len(b.GetEntries(100)); got != 5 {
		t.Errorf("GetEntries(100) = %d entries, want 5", got)
	}
	if got := len(b.GetEntries(0)); got != 0 {
		t.Errorf("GetEntries(0) = %d entries", got)
	}
	if got := len(b.GetEntries(-1)); got != 0 {
		t.Errorf("GetEntries(-1) = %d entries", got)
	}
}

func TestLogRingBuffer_WrapsInOrder(t *testing.T) {
	b := NewLogRingBuffer(3)
	for i := 0; i < 5; i++ {
		b.Write([]byte(strconv.Itoa(i)))
	}
	entries := b.GetEntries(3)
	if entries[0].Raw != "2" || entries[1].Raw != "3" || entries[2].Raw != "4" {
		t.Errorf("wrong order after wrap: %v", entries)
	}
}

func TestNewLogger_TeesToBuffer(t *testing.T) {
	var out bytes.Buffer
	b := NewLogRingBuffer(10)
	logger := NewLogger(LoggingConfig{Level: "info", Format: "console"}, &out, b)
	logger.Info().Msg("engine started")

	if !bytes.Contains(out.Bytes(), []byte("engine started")) {
		t.Errorf("console output = %q", out.String())
	}
	entries := b.GetEntries(1)
	if len(entries) != 1 || entries[0].Level != "info" || entries[0].Message != "engine started" {
		t.Errorf("buffer entries = %+v", entries)
	}
}

func TestLogRingBuffer_ConcurrentSafe(t *testing.T) {
	b := NewLogRingBuffer(100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Write([]byte("write"))
		}()
		go func() {
			defer wg.Done()
			b.GetEntries(5)
		}()
	}
	wg.Wait()
}
