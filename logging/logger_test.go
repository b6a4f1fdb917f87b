package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oliverbenduhn/tabletto/config"
	"github.com/oliverbenduhn/tabletto/logging"
)

func TestNew_Production(t *testing.T) {
	logger, err := logging.New(config.LoggerConfig{Level: "warn", Encoding: "json"})

	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_DevelopmentDefaultsToDebug(t *testing.T) {
	logger, err := logging.New(config.LoggerConfig{Development: true, Encoding: "console"})

	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := logging.New(config.LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(config.LoggerConfig{Encoding: "xml"})
	assert.Error(t, err)
}
