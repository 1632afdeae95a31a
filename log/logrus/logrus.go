// Package logrus adapts a *logrus.Entry to snapcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/snapcache"
)

var _ snapcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=snapcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "snapcache")}
}

func (l LogrusLogger) Debug(msg string, f snapcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f snapcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f snapcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f snapcache.Fields) { l.with(f).Error(msg) }

func (l LogrusLogger) with(f snapcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	rest := make(logrus.Fields, len(f))
	for k, v := range f {
		if k != "err" {
			rest[k] = v
		}
	}
	return e.WithFields(rest)
}
