// Package logging wraps log/slog with the fleet-run logging vocabulary.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Crusty-rs/crusty/internal/target"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	Format  Format
	Output  io.Writer // defaults to stderr
	Quiet   bool      // suppress non-error output
	Verbose bool      // lower the level to debug
}

// Logger wraps slog.Logger. Credentials and key paths are never logged.
type Logger struct {
	logger *slog.Logger
	quiet  bool
}

// New creates a logger from config.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{logger: slog.New(handler), quiet: cfg.Quiet}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return New(Config{Output: io.Discard, Quiet: true})
}

func (l *Logger) Info(msg string, args ...any) {
	if l.quiet {
		return
	}
	l.logger.Info(msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	if l.quiet {
		return
	}
	l.logger.Debug(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// LogConnection records an established session.
func (l *Logger) LogConnection(t target.Target, duration time.Duration) {
	l.Debug("session established",
		"host", t.Host,
		"port", t.Port,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogRetry records a scheduled re-attempt.
func (l *Logger) LogRetry(t target.Target, attempt uint, reason string) {
	l.Info("retrying target",
		"host", t.Host,
		"port", t.Port,
		"attempt", attempt,
		"reason", reason,
	)
}

// LogDispatchStart records the run parameters.
func (l *Logger) LogDispatchStart(targets, concurrency int, maxRetries uint) {
	l.Info("dispatch started",
		"targets", targets,
		"concurrency", concurrency,
		"max_retries", maxRetries,
	)
}

// LogTargetDone records a completed mechanism-successful execution.
func (l *Logger) LogTargetDone(t target.Target, exitCode int, duration time.Duration, attempts uint) {
	l.Info("target completed",
		"host", t.Host,
		"port", t.Port,
		"exit_code", exitCode,
		"duration_ms", duration.Milliseconds(),
		"attempts", attempts,
	)
}

// LogTargetFailed records a target whose every attempt failed.
func (l *Logger) LogTargetFailed(t target.Target, err error, attempts uint) {
	l.Error("target failed",
		"host", t.Host,
		"port", t.Port,
		"error", err.Error(),
		"attempts", attempts,
	)
}

// LogHostKeyWarning records that host key verification was skipped.
func (l *Logger) LogHostKeyWarning(hostname string) {
	l.logger.Warn("host key verification disabled for host", "host", hostname)
}

// LogFormatError records a rendering failure for one result.
func (l *Logger) LogFormatError(t target.Target, err error) {
	l.Error("failed to format result", "host", t.Host, "error", err.Error())
}

// LogFinalizeError records a failure flushing buffered output.
func (l *Logger) LogFinalizeError(err error) {
	l.Error("failed to finalize output", "error", err.Error())
}
