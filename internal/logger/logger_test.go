package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapper_FieldsReachZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.WithFields(map[string]interface{}{"column": "gender_Female"}).
		Warn("schema column missing from row", map[string]interface{}{"kind": "missing_column"})
	l.WithError(errors.New("boom")).Error("load failed", nil)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "gender_Female", ctx["column"])
		assert.Equal(t, "missing_column", ctx["kind"])
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	}
}

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := New(lvl, "json")
		assert.NotNil(t, l)
	}
	assert.NotNil(t, Zap(NewNop()))
}
