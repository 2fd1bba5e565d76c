package core

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger from the logging config. Extra writers
// receive the raw JSON lines alongside the formatted output.
func NewLogger(cfg LoggingConfig, out io.Writer, extra ...io.Writer) zerolog.Logger {
	return zerolog.New(logWriter(cfg, out, extra)).
		With().Timestamp().Logger().
		Level(ParseLogLevel(cfg.Level))
}

func logWriter(cfg LoggingConfig, out io.Writer, extra []io.Writer) io.Writer {
	var w io.Writer = out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if len(extra) == 0 {
		return w
	}
	return zerolog.MultiLevelWriter(append([]io.Writer{w}, extra...)...)
}

// ParseLogLevel parses a level name, falling back to info.
func ParseLogLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// LevelSwitch is a zerolog.LevelWriter whose minimum level can be changed
// while loggers built on it are in use.
type LevelSwitch struct {
	out   zerolog.LevelWriter
	level atomic.Int32
}

// NewLevelSwitch wraps out, passing through events at or above level.
func NewLevelSwitch(out io.Writer, level zerolog.Level) *LevelSwitch {
	s := &LevelSwitch{out: zerolog.MultiLevelWriter(out)}
	s.level.Store(int32(level))
	return s
}

func (s *LevelSwitch) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *LevelSwitch) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < s.Level() {
		return len(p), nil
	}
	return s.out.WriteLevel(l, p)
}

// Level returns the current minimum level.
func (s *LevelSwitch) Level() zerolog.Level {
	return zerolog.Level(s.level.Load())
}

// SetLevel changes the minimum level.
func (s *LevelSwitch) SetLevel(l zerolog.Level) {
	s.level.Store(int32(l))
}
