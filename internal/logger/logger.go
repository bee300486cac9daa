// Package logger provides the application's structured logger, built on
// logrus the way the rest of the car-cards stack expects: JSON by default,
// optional rotation to disk, and field helpers for the identifiers the
// server logs most often (match id, player id).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how the global logger is constructed.
type Config struct {
	Level    string // trace, debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file, both
	Filename string
	MaxSizeMB int
	MaxBackups int
	MaxAgeDays int
	Compress bool
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		Filename:   "cardcards.log",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 14,
		Compress:   true,
	}
}

// Logger wraps logrus.Logger with the server's field conventions.
type Logger struct {
	*logrus.Logger
}

var global *Logger

// Initialize configures the global logger. Safe to call once at startup;
// later calls replace the global instance.
func Initialize(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}

	if err := setOutput(l, cfg); err != nil {
		return err
	}

	global = &Logger{Logger: l}
	return nil
}

func setOutput(l *logrus.Logger, cfg *Config) error {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		l.SetOutput(os.Stdout)
	case "file":
		l.SetOutput(fileWriter(cfg))
	case "both":
		l.SetOutput(io.MultiWriter(os.Stdout, fileWriter(cfg)))
	default:
		return fmt.Errorf("invalid log output %q", cfg.Output)
	}
	return nil
}

func fileWriter(cfg *Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Get returns the global logger, lazily initializing it with defaults if
// nothing has called Initialize yet.
func Get() *Logger {
	if global == nil {
		if err := Initialize(nil); err != nil {
			panic(fmt.Sprintf("logger: failed to initialize default config: %v", err))
		}
	}
	return global
}

// WithMatch returns an entry tagged with the match identifier.
func (l *Logger) WithMatch(matchID string) *logrus.Entry {
	return l.WithField("match_id", matchID)
}

// WithPlayer returns an entry tagged with the player identifier.
func (l *Logger) WithPlayer(playerID string) *logrus.Entry {
	return l.WithField("player_id", playerID)
}
