package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger  = log.New(os.Stderr, "[canlog] ", log.LstdFlags|log.Lmicroseconds)
	verbose atomic.Bool
)

// LogConfig controls the rotated log file.
type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// Debugf logs only when verbose output is enabled.
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		logger.Printf("debug: "+format, args...)
	}
}

func SetVerbose(v bool) {
	verbose.Store(v)
}

// SetOutput redirects the package logger, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetupLogging tees log output to stderr and a rotated file in
// cfg.Directory. An empty directory keeps stderr only.
func SetupLogging(cfg LogConfig, name string) (io.Closer, error) {
	if cfg.Directory == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
