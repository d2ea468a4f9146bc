package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		enabled zapcore.Level
		muted   *zapcore.Level
	}{
		{name: "debug console", level: "debug", format: "console", enabled: zapcore.DebugLevel},
		{name: "warn json", level: "warn", format: "json", enabled: zapcore.WarnLevel, muted: levelPtr(zapcore.InfoLevel)},
		{name: "invalid level falls back to info", level: "loud", format: "console", enabled: zapcore.InfoLevel, muted: levelPtr(zapcore.DebugLevel)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewZapLogger(tt.level, tt.format)
			require.NoError(t, err)
			defer func() { _ = l.Sync() }()

			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.muted != nil {
				assert.False(t, l.Core().Enabled(*tt.muted))
			}
		})
	}
}

func levelPtr(l zapcore.Level) *zapcore.Level {
	return &l
}
