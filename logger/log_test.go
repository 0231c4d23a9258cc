package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigureSetsGlobalLevel(t *testing.T) {
	config := Config{
		Level:  "warn",
		Format: "console",
	}
	err := config.Configure()
	require.NoError(t, err)

	require.False(t, logger.Core().Enabled(zap.DebugLevel))
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))
	require.False(t, DebugEnabled)
}

func TestConfigureDebugEnablesDebugLogging(t *testing.T) {
	config := Config{
		Level:  "debug",
		Format: "json",
	}
	err := config.Configure()
	require.NoError(t, err)

	require.True(t, logger.Core().Enabled(zap.DebugLevel))
	require.True(t, DebugEnabled)

	Debug("debug 1", " debug 2")
	Debugf("debug %d debug %d", 1, 2)
	Info("info 1", " info 2")
	Infof("info %d info %d", 1, 2)
	Warn("warn 1", " warn 2")
	Warnf("warn %d warn %d", 1, 2)
	Error("error 1", " error 2")
	Errorf("error %d error %d", 1, 2)
}

func TestConfigureInvalidLevel(t *testing.T) {
	config := Config{
		Level:  "verbose",
		Format: "console",
	}
	err := config.Configure()
	require.Error(t, err)
}

func TestConfigureInvalidFormat(t *testing.T) {
	config := Config{
		Level:  "info",
		Format: "xml",
	}
	err := config.Configure()
	require.Error(t, err)
	require.Equal(t, "log-format must be one of 'console' or 'json'", err.Error())
}
