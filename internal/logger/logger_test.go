package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wallet-ledger/internal/config"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name              string
		logLevel          string
		expectedSlogLevel slog.Level
	}{
		{"DebugLevel", "debug", slog.LevelDebug},
		{"InfoLevel", "info", slog.LevelInfo},
		{"WarnLevel", "WARN", slog.LevelWarn},
		{"WarningAlias", "warning", slog.LevelWarn},
		{"ErrorLevel", "error", slog.LevelError},
		{"DefaultToInfo", "unknown", slog.LevelInfo},
		{"EmptyToInfo", "", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{
				Logging: config.LoggingConfig{
					Level: tc.logLevel,
				},
			}

			logger := New(&bytes.Buffer{}, cfg)
			require.NotNil(t, logger)

			assert.True(t, logger.Enabled(context.Background(), tc.expectedSlogLevel))
			if tc.expectedSlogLevel > slog.LevelDebug {
				assert.False(t, logger.Enabled(context.Background(), tc.expectedSlogLevel-1))
			}
		})
	}
}

func TestNew_TagsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		Application: config.ApplicationConfig{Name: "wallet-api", Env: "staging"},
		Logging:     config.LoggingConfig{Level: "info"},
	}

	logger := New(&buf, cfg)
	buf.Reset()
	logger.Info("wallet created", "wallet_id", "w-1")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "wallet-api", record["service"])
	assert.Equal(t, "staging", record["env"])
	assert.Equal(t, "wallet created", record["msg"])
	assert.Equal(t, "w-1", record["wallet_id"])
}

func TestNew_OmitsEmptyAttributes(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, &config.Config{})

	line := buf.String()
	assert.True(t, strings.Contains(line, "logger initialized"))
	assert.False(t, strings.Contains(line, `"service"`))
	assert.False(t, strings.Contains(line, `"env"`))
}

func TestNew_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, &config.Config{Logging: config.LoggingConfig{Level: "debug"}})

	assert.Contains(t, buf.String(), `"source"`)
}
