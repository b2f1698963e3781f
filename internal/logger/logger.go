package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string // debug, info, warn, error
	Format     string // "json" or "text"
	FilePath   string // rotated log file; empty logs to stdout only
	MaxSize    int    // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Console    bool // also write to stdout when FilePath is set
}

// NewLogger builds a logger from config.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	formatter, err := newFormatter(config.Format)
	if err != nil {
		return nil, err
	}
	out, err := newOutput(config)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetOutput(out)
	return log, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		}, nil
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.TimeOnly}, nil
	}
	return nil, fmt.Errorf("unknown log format: %s", format)
}

// newOutput returns stdout, the lumberjack file, or both.
func newOutput(config LoggerConfig) (io.Writer, error) {
	if config.FilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	if config.Console {
		return io.MultiWriter(file, os.Stdout), nil
	}
	return file, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ForOperation tags entries with a processing operation (resize, compress)
// plus any extra fields such as the file name or batch id.
func ForOperation(log *logrus.Logger, operation string, fields logrus.Fields) *logrus.Entry {
	entry := log.WithField("operation", operation)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	return entry
}

// ForSink tags entries written while storing name to a sink.
func ForSink(log *logrus.Logger, sink, name string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"sink": sink,
		"file": name,
	})
}
