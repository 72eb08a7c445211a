package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func reset(t *testing.T) {
	t.Helper()
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	Logger = nil
}

func TestGet_BeforeInit(t *testing.T) {
	reset(t)
	assert.NotNil(t, Get())
	assert.False(t, Get().Core().Enabled(zapcore.ErrorLevel))
}

func TestInit_Levels(t *testing.T) {
	reset(t)

	require.NoError(t, Init("production"))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Get().Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init("development"))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
}

func TestInitCLI(t *testing.T) {
	reset(t)

	require.NoError(t, InitCLI(false))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Get().Core().Enabled(zapcore.WarnLevel))

	require.NoError(t, InitCLI(true))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
}
