package slog

import (
	"bytes"
	stdslog "log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unkn0wn-root/snapcache"
)

func TestSlogLoggerOrderAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("dropped", snapcache.Fields{"a": 1})
	l.Info("snapshot stale", snapcache.Fields{"path": "/proj/a.js", "kind": "resolve"})

	out := buf.String()
	assert.NotContains(t, out, "dropped", "debug line must be filtered")
	assert.Contains(t, out, `msg="snapshot stale" kind=resolve path=/proj/a.js`)
}
