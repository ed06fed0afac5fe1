package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: *NewDefaultConfig()},
		{name: "console debug", config: Config{Level: "debug", Format: "console"}},
		{name: "bad format", config: Config{Level: "info", Format: "text"}, wantErr: true},
		{name: "bad level", config: Config{Level: "verbose", Format: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := New(&Config{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "text"})
	assert.Error(t, err)
}
