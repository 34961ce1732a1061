package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level describes severity of log message.
type Level = logrus.Level

const (
	// LevelInfo is default log level.
	LevelInfo = logrus.InfoLevel
	// LevelDebug enables verbose output.
	LevelDebug = logrus.DebugLevel
	// LevelWarn hides progress lines.
	LevelWarn = logrus.WarnLevel
	// LevelError only reports failures.
	LevelError = logrus.ErrorLevel
)

// ParseLevel converts string to Level.
func ParseLevel(v string) Level {
	switch strings.ToLower(v) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a thin wrapper around logrus with the printf-style API the
// rest of the module uses.
type Logger struct {
	entry *logrus.Entry
}

// New creates a configured logger. Lines always go to stdout; a non-empty
// path also appends them to that file.
func New(path string, level Level) (*Logger, error) {
	var output io.Writer = os.Stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		output = io.MultiWriter(os.Stdout, f)
	}
	l := logrus.New()
	l.SetOutput(output)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	return FromLogrus(l), nil
}

// FromLogrus wraps an existing logrus logger. Tests use it with
// logrus/hooks/test.
func FromLogrus(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l).WithField("prefix", "hostinv")}
}

// SetFormat switches between "text" (default) and "json" output.
func (l *Logger) SetFormat(format string) {
	if l == nil {
		return
	}
	if strings.EqualFold(format, "json") {
		l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.entry.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
}

// WithHost returns a logger whose lines carry the host field.
func (l *Logger) WithHost(host string) *Logger {
	return l.WithField("host", host)
}

// WithField returns a logger with one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Infof logs informational messages.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Infof(format, args...)
}

// Debugf logs verbose diagnostic messages.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Debugf(format, args...)
}

// Warnf logs problems that do not stop the run.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Warnf(format, args...)
}

// Errorf logs errors.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.entry.Errorf(format, args...)
}

// Printf keeps compatibility with standard log API.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Infof(format, args...)
}
