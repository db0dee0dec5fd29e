package main

import (
	"testing"

	"github.com/concentration-game/concentration-server-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		for _, format := range []string{"json", "console"} {
			logger, err := initLogger(config.LoggingConfig{Level: tt.level, Format: format})
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want), "%s/%s", tt.level, format)
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1), "%s/%s", tt.level, format)
			}
		}
	}
}
