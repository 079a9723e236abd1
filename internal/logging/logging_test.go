package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogManager(t *testing.T) {
	t.Run("should create a manager with defaults", func(t *testing.T) {
		lm := NewLogManager()
		require.NotNil(t, lm)
		assert.Equal(t, LogLevelInfo, lm.config.MinLevel)
		assert.Equal(t, 512, cap(lm.buffer))
	})
}

func TestLogManager_RecordAndRecent(t *testing.T) {
	t.Run("should buffer recorded entries in order", func(t *testing.T) {
		lm := NewLogManagerWithConfig(LogConfig{MinLevel: LogLevelDebug, BufferSize: 2, Output: os.Stdout})
		logger := lm.For("test")

		logger.Infof("first")
		logger.Infof("second")
		logger.Infof("third")

		recent := lm.Recent()
		require.Len(t, recent, 2)
		assert.Equal(t, "second", recent[0].Message)
		assert.Equal(t, "third", recent[1].Message)
	})

	t.Run("should drop entries below the minimum level", func(t *testing.T) {
		lm := NewLogManagerWithConfig(LogConfig{MinLevel: LogLevelWarn, BufferSize: 8, Output: os.Stdout})
		logger := lm.For("test")

		logger.Debugf("ignored")
		logger.Infof("ignored too")
		logger.Warnf("kept")

		recent := lm.Recent()
		require.Len(t, recent, 1)
		assert.Equal(t, "kept", recent[0].Message)
	})
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}
