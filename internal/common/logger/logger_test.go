package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Compile-time checks that every constructor satisfies the interface.
var (
	_ Logger = NewNoOpLogger()
	_ Logger = (*zapWrapper)(nil)
)

func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewZapAdapter(zap.New(core)), logs
}

func TestLogger_WithErrorAttachesField(t *testing.T) {
	log, logs := newObservedLogger()

	log.WithError(errors.New("boom")).Error("operation failed", nil)

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "operation failed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "boom", fields["error"])
}

func TestLogger_WithFieldsChains(t *testing.T) {
	log, logs := newObservedLogger()

	log.WithFields(map[string]interface{}{"component": "test"}).
		WithError(errors.New("boom")).
		Info("chained", map[string]interface{}{"attempt": int64(2)})

	entries := logs.All()
	assert.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, int64(2), fields["attempt"])
}
