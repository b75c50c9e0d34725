// Package logger is the component-scoped structured logger shared by the
// alignment stages, the simulation driver and the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is what alignment components log through. Each call names the
// emitting component and carries free-form fields; nil fields are fine.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// Structured is a Logger backed by a zerolog.Logger.
type Structured struct {
	zl zerolog.Logger
}

// New writes JSON lines at or above level to w, stamped with the time.
func New(w io.Writer, level zerolog.Level) *Structured {
	return &Structured{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// NewConsole writes human readable lines to stderr; stdout is left to
// command output such as planned angles and reports.
func NewConsole(level zerolog.Level) *Structured {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level)
}

// Nop discards everything.
func Nop() *Structured {
	return &Structured{zl: zerolog.Nop()}
}

// ParseLevel maps a config or flag value such as "debug" or "warn" to a
// zerolog level. The empty string means info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func (s *Structured) Debug(component, message string, fields map[string]interface{}) {
	emit(s.zl.Debug(), component, fields).Msg(message)
}

func (s *Structured) Info(component, message string, fields map[string]interface{}) {
	emit(s.zl.Info(), component, fields).Msg(message)
}

func (s *Structured) Warning(component, message string, fields map[string]interface{}) {
	emit(s.zl.Warn(), component, fields).Msg(message)
}

// Error logs err under the fixed message "failed".
func (s *Structured) Error(component string, err error, fields map[string]interface{}) {
	emit(s.zl.Error(), component, fields).Err(err).Msg("failed")
}

// emit tags e with the component and fields. A disabled level yields a
// nil event, which zerolog treats as a no-op.
func emit(e *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	return e.Str("component", component).Fields(fields)
}
