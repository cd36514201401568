// Package svclog provides logging for the slsenv commands.
package svclog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config for logger.
type Config struct {
	Service  string
	Stage    string
	LogLevel string `env:"LOG_LEVEL,default=info"`
	JSON     bool   `env:"LOG_JSON"`

	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger returns a logger that includes service and stage key/value
// pairs in each log line once they are known.
func NewLogger(cfg Config) logrus.FieldLogger {
	l := logrus.New()
	l.Out = cfg.Output
	if l.Out == nil {
		l.Out = os.Stderr
	}
	if cfg.JSON {
		l.Formatter = &logrus.JSONFormatter{}
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		l.SetLevel(lvl)
	}

	logger := logrus.NewEntry(l)
	if cfg.Service != "" {
		logger = logger.WithField("service", cfg.Service)
	}
	if cfg.Stage != "" {
		logger = logger.WithField("stage", cfg.Stage)
	}
	return logger
}
