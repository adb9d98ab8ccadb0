package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/wikigraph/internal/config"
)

func TestNew_DefaultsToInfoLevel(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(config.LoggingConfig{Development: development})
		require.NoError(t, err)
		require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}

func TestNew_HonorsConfiguredLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(config.LoggingConfig{Development: true, Level: "debug"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(config.LoggingConfig{Level: "error"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	require.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(config.LoggingConfig{Level: "shouting"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "shouting")
}
