package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const defaultLogFile = "multiverse.log"

var (
	mu           sync.Mutex
	traceEnabled bool
	logPath      = defaultLogFile
	logger       = zerolog.New(&appendWriter{}).With().Timestamp().Logger()
)

// appendWriter opens the current log path for every write so the file can be
// rotated or removed underneath a running session.
type appendWriter struct{}

func (appendWriter) Write(p []byte) (int, error) {
	mu.Lock()
	path := logPath
	mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging failed: %v\n", err)
		return len(p), nil
	}
	defer f.Close()
	return f.Write(p)
}

// Logger returns a sub-logger tagged with the given component name.
func Logger(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// Error writes err to the shared log file. Nil errors are ignored.
func Error(err error) {
	if err == nil {
		return
	}
	logger.Error().Err(err).Msg("")
}

// Warn records a recoverable failure that leaves some state unknown.
func Warn(err error, msg string) {
	logger.Warn().Err(err).Msg(msg)
}

// Info records a lifecycle message.
func Info(msg string) {
	logger.Info().Msg(msg)
}

// SetTraceEnabled toggles emission of structured trace entries.
func SetTraceEnabled(enabled bool) {
	mu.Lock()
	traceEnabled = enabled
	mu.Unlock()
}

// TraceEnabled reports whether Trace currently emits entries.
func TraceEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return traceEnabled
}

// Trace appends a structured entry to the shared log when tracing is enabled.
func Trace(event string, payload interface{}) {
	if !TraceEnabled() {
		return
	}
	e := logger.Debug().Str("event", event)
	if payload != nil {
		e = e.Interface("payload", payload)
	}
	e.Msg("")
}

// Configure sets the log destination. Empty values fall back to the default
// path. Directories are created automatically when missing.
func Configure(path string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(path) == "" {
		logPath = defaultLogFile
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "unable to create log directory: %v\n", err)
		logPath = defaultLogFile
		return
	}
	logPath = path
}

// Path returns the file currently receiving log output.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Writer exposes the log sink for libraries that want an io.Writer.
func Writer() io.Writer {
	return appendWriter{}
}
