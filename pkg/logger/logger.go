// Package logger provides the process-wide logrus logger. The core
// fingerprint package never logs; the service layer and commands do.
package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger *logrus.Logger
	once          sync.Once
)

// New returns a logger at the given level ("debug", "info", "warn",
// "error"). An unparseable level falls back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// Default returns the shared logger, honoring WAVEMARK_LOG_LEVEL on first
// use.
func Default() *logrus.Logger {
	once.Do(func() {
		level := os.Getenv("WAVEMARK_LOG_LEVEL")
		if level == "" {
			level = "info"
		}
		defaultLogger = New(level)
	})
	return defaultLogger
}
