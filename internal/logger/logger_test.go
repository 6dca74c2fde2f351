package logger

import (
	"bytes"
	"testing"

	"github.com/deppfellow/go-dbkit/internal/config"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPgxTraceLogLevel(t *testing.T) {
	tests := []struct {
		in   zerolog.Level
		want tracelog.LogLevel
	}{
		{zerolog.TraceLevel, tracelog.LogLevelTrace},
		{zerolog.DebugLevel, tracelog.LogLevelDebug},
		{zerolog.InfoLevel, tracelog.LogLevelInfo},
		{zerolog.WarnLevel, tracelog.LogLevelWarn},
		{zerolog.ErrorLevel, tracelog.LogLevelError},
		{zerolog.Disabled, tracelog.LogLevelNone},
	}
	for _, tt := range tests {
		assert.Equal(t, int(tt.want), GetPgxTraceLogLevel(tt.in), tt.in.String())
	}
}

func TestNewLoggerServiceDisabled(t *testing.T) {
	svc, err := NewLoggerService(config.DefaultObservabilityConfig())
	require.NoError(t, err)
	assert.Nil(t, svc.GetApplication())
	svc.Shutdown()

	var nilService *LoggerService
	assert.Nil(t, nilService.GetApplication())
}

func TestNewJSONLogger(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Environment = "production"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	log := newWithWriter(cfg, nil, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("query", "SELECT 1").Msg("slow query")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"slow query"`)
	assert.Contains(t, out, `"service":"dbkit"`)
	assert.Contains(t, out, `"env":"production"`)
}

func TestNewConsoleLogger(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Logging.Level = "debug"

	var buf bytes.Buffer
	log := newWithWriter(cfg, nil, &buf)
	log.Debug().Msg("connected to the database")

	assert.Contains(t, buf.String(), "connected to the database")
	assert.NotContains(t, buf.String(), `"message"`)
}
