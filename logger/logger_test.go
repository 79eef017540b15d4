package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{"JSON output mode", true, VerbosityInfo, zapcore.InfoLevel, zapcore.DebugLevel},
		{"Console output mode", false, VerbosityUser, zapcore.WarnLevel, zapcore.InfoLevel},
		{"Console debug", false, VerbosityDebug, zapcore.DebugLevel, zapcore.DebugLevel - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { Logger = zap.NewNop().Sugar(); JSONOutput = false })

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			core := Logger.Desugar().Core()
			assert.True(t, core.Enabled(tt.enabled))
			assert.False(t, core.Enabled(tt.disabled))
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, "Trace (-vvv+)", LevelName(5))
}

func TestOr(t *testing.T) {
	custom := zap.NewNop().Sugar()
	assert.Same(t, custom, Or(custom))
	assert.Same(t, Logger, Or(nil))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithCycleID(context.Background(), "c-1")
	ctx = WithComponent(ctx, "poller")
	FromContext(ctx, base).Infow("cycle complete")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "c-1", fields[FieldCycleID])
	assert.Equal(t, "poller", fields[FieldComponent])
}

func TestStateInfow(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core).Sugar()

	StateInfow(l, "conflict", "needs resolution", FieldPath, "a.md")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "⇅", fields[FieldSymbol])
	assert.Equal(t, "conflict", fields[FieldState])
	assert.Equal(t, "a.md", fields[FieldPath])
}
