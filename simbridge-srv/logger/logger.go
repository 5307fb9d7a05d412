package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the severity of a log message.
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu       sync.RWMutex
	current  = INFO
	sink     = log.New(os.Stdout, "", log.LstdFlags)
	exitFunc = os.Exit
)

// SetLevel sets the minimum level that will be written.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	current = level
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = log.New(w, "", log.LstdFlags)
}

// Enabled reports whether messages at the given level would be written.
func Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= current
}

// ParseLevel converts a level name to a Level. Unknown names map to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func write(level Level, component, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if level < current {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if component != "" {
		sink.Printf("[%s] (%s) %s", level, component, msg)
		return
	}
	sink.Printf("[%s] %s", level, msg)
}

// Trace logs a trace message.
// Arguments are handled in the manner of [fmt.Printf].
func Trace(format string, v ...any) { write(TRACE, "", format, v...) }

// Debug logs a debug message.
// Arguments are handled in the manner of [fmt.Printf].
func Debug(format string, v ...any) { write(DEBUG, "", format, v...) }

// Info logs an informational message.
// Arguments are handled in the manner of [fmt.Printf].
func Info(format string, v ...any) { write(INFO, "", format, v...) }

// Warn logs a warning message.
// Arguments are handled in the manner of [fmt.Printf].
func Warn(format string, v ...any) { write(WARN, "", format, v...) }

// Error logs an error message.
// Arguments are handled in the manner of [fmt.Printf].
func Error(format string, v ...any) { write(ERROR, "", format, v...) }

// Fatal logs a fatal message and exits.
// Arguments are handled in the manner of [fmt.Printf].
func Fatal(format string, v ...any) {
	write(FATAL, "", format, v...)
	exitFunc(1)
}

// Component is a named sub-logger. The component name is included in
// every message, which keeps proxy, admin and harness output apart.
type Component struct {
	name string
}

// WithComponent returns a sub-logger that prefixes messages with name.
func WithComponent(name string) *Component {
	return &Component{name: name}
}

func (c *Component) Trace(format string, v ...any) { write(TRACE, c.name, format, v...) }
func (c *Component) Debug(format string, v ...any) { write(DEBUG, c.name, format, v...) }
func (c *Component) Info(format string, v ...any)  { write(INFO, c.name, format, v...) }
func (c *Component) Warn(format string, v ...any)  { write(WARN, c.name, format, v...) }
func (c *Component) Error(format string, v ...any) { write(ERROR, c.name, format, v...) }
