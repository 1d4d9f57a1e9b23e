// Package logger provides logging implementations for Foreman execution.
//
// The logger package offers level-filtered, timestamped logging of engine
// progress plus lifecycle-event rendering. Implementations are thread-safe
// and support console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/foreman/internal/agent"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs engine progress to a writer with [HH:MM:SS] timestamps
// and thread safety. Color output is enabled automatically when writing to a
// terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded. Valid levels:
// trace, debug, info, warn, error (case-insensitive); empty or invalid
// levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		if color.NoColor {
			return false
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// normalizeLogLevel lowercases and validates a log level string, defaulting
// to "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func (cl *ConsoleLogger) logf(level, format string, args ...any) {
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.logf("debug", format, args...)
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.logf("info", format, args...)
}

// Warnf logs a warn-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.logf("warn", format, args...)
}

// Errorf logs an error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.logf("error", format, args...)
}

// Emit renders a lifecycle event, implementing agent.EventSink.
func (cl *ConsoleLogger) Emit(event agent.Event) {
	if cl.writer == nil {
		return
	}

	label := string(event.Type)
	if cl.colorOutput {
		switch event.Type {
		case agent.EventTaskCompleted, agent.EventStepCompleted:
			label = color.GreenString(label)
		case agent.EventTaskFailed, agent.EventStepFailed, agent.EventValidationFailed:
			label = color.RedString(label)
		case agent.EventPlanningStarted, agent.EventPlanningCompleted:
			label = color.CyanString(label)
		default:
			label = color.YellowString(label)
		}
	}

	subject := event.TaskID
	if event.StepID != "" {
		subject = event.StepID
	}
	if event.Message != "" {
		cl.logf("info", "%s %s: %s", label, subject, event.Message)
	} else {
		cl.logf("info", "%s %s", label, subject)
	}
}
