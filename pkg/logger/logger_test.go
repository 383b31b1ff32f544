package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestFromContextAddsRunFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWith(context.Background(), RunIDKey, "run-1")
	ctx = ContextWith(ctx, LoaderKey, "pages")

	FromContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "pages", fields["loader"])
	assert.NotContains(t, fields, "window")
}

func TestGetReturnsDefaultLogger(t *testing.T) {
	assert.NotNil(t, Get())
	assert.NotNil(t, With(zap.String("component", "test")))
}
