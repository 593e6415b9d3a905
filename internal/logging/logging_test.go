package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	ctx := context.Background()

	debug := New("debug", "text")
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	errOnly := New("error", "json")
	assert.False(t, errOnly.Enabled(ctx, slog.LevelInfo))
	assert.True(t, errOnly.Enabled(ctx, slog.LevelError))

	// Unknown level defaults to info.
	def := New("verbose", "text")
	assert.False(t, def.Enabled(ctx, slog.LevelDebug))
	assert.True(t, def.Enabled(ctx, slog.LevelInfo))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))

	ctx = WithRequestID(ctx, "req-456")
	assert.Equal(t, "req-456", RequestID(ctx))
}

func TestFromContext(t *testing.T) {
	// Default when none stored.
	require.NotNil(t, FromContext(context.Background()))

	custom := New("debug", "json")
	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestL_AnnotatesRequestID(t *testing.T) {
	ctx := WithLogger(context.Background(), New("info", "text"))
	require.NotNil(t, L(ctx))

	ctx = WithRequestID(ctx, "req-789")
	require.NotNil(t, L(ctx))
}
