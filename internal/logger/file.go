package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/agent"
)

// FileLogger logs engine events to a timestamped per-run log file under the
// configured log directory and maintains a latest.log symlink pointing to
// the most recent run. It is thread-safe and implements agent.EventSink and
// the executor logging surface.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// DefaultLogDir is the log location relative to the working directory.
const DefaultLogDir = ".foreman/logs"

// NewFileLogger creates a FileLogger writing to DefaultLogDir at info level.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(DefaultLogDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log
// directory and level. The directory is created if it does not exist.
func NewFileLoggerWithDirAndLevel(logDir, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	// Symlinks are best-effort; some filesystems refuse them.
	_ = os.Symlink(filepath.Base(runFile), symlinkPath)

	return &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}, nil
}

// Close closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

// RunFile returns the path of the current run's log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) logf(level, format string, args ...any) {
	if logLevelToInt(level) < logLevelToInt(fl.logLevel) {
		return
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(fl.runLog, "[%s] [%s] %s\n", timestamp, level, fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (fl *FileLogger) Debugf(format string, args ...any) {
	fl.logf("debug", format, args...)
}

// Infof logs an info-level message.
func (fl *FileLogger) Infof(format string, args ...any) {
	fl.logf("info", format, args...)
}

// Warnf logs a warn-level message.
func (fl *FileLogger) Warnf(format string, args ...any) {
	fl.logf("warn", format, args...)
}

// Errorf logs an error-level message.
func (fl *FileLogger) Errorf(format string, args ...any) {
	fl.logf("error", format, args...)
}

// Emit writes a lifecycle event line, implementing agent.EventSink.
func (fl *FileLogger) Emit(event agent.Event) {
	subject := event.TaskID
	if event.StepID != "" {
		subject = subject + "/" + event.StepID
	}
	if event.Message != "" {
		fl.logf("info", "%s %s: %s", event.Type, subject, event.Message)
	} else {
		fl.logf("info", "%s %s", event.Type, subject)
	}
}
