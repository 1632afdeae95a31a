// Package zap adapts a *zap.Logger to snapcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/snapcache"
)

var _ snapcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger "snapcache".
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("snapcache")} }

func (z ZapLogger) Debug(msg string, f snapcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f snapcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f snapcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f snapcache.Fields) { z.L.Error(msg, zf(f)...) }

// zf emits fields in key order; "err" becomes zap.Error.
func zf(f snapcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
