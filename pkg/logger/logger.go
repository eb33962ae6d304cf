package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"atelier-backend/pkg/config"
)

var (
	log  *logrus.Logger
	once sync.Once
)

// Get returns the process-wide logger, initialized once per cold start from
// config (level; JSON format in production, text otherwise).
func Get() *logrus.Logger {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stdout)

		cfg := config.GetCached()

		switch cfg.LogLevel {
		case "trace":
			l.SetLevel(logrus.TraceLevel)
		case "debug":
			l.SetLevel(logrus.DebugLevel)
		case "warning", "warn":
			l.SetLevel(logrus.WarnLevel)
		case "error":
			l.SetLevel(logrus.ErrorLevel)
		default:
			l.SetLevel(logrus.InfoLevel)
		}
		if cfg.Debug {
			l.SetLevel(logrus.DebugLevel)
		}

		if cfg.IsProduction() {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}

		log = l
	})
	return log
}

// WithField is a convenience wrapper around Get().WithField.
func WithField(key string, value interface{}) *logrus.Entry {
	return Get().WithField(key, value)
}

// WithFields is a convenience wrapper around Get().WithFields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}
