// Package log provides the leveled, structured logger used across pcapmerge.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/pcapmerge/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

const (
	defaultPattern = "%time [%level] %msg %field"
	defaultTime    = "2006-01-02 15:04:05"
)

var (
	mu     sync.RWMutex
	logger Logger = newDefaultLogger()
)

// GetLogger returns the process-wide logger. It is usable before Init and
// then writes info-level text to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process-wide logger.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Init builds the process-wide logger from configuration. Stderr is always an
// output; a rotating file is added when enabled.
func Init(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	out := NewMultiWriter().Add(os.Stderr)
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(FileAppenderOpt{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.Rotation.MaxSizeMB,
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		})
	}

	l := logrus.New()
	l.SetFormatter(newFormatter(cfg.Pattern, cfg.Time))
	l.SetLevel(level)
	l.SetOutput(out)

	SetLogger(NewLogrusLogger(logrus.NewEntry(l)))
	return nil
}

func newDefaultLogger() Logger {
	l := logrus.New()
	l.SetFormatter(newFormatter(defaultPattern, defaultTime))
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stderr)
	return NewLogrusLogger(logrus.NewEntry(l))
}
