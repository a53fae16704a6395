package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/history"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, MongoConfig{}, cfg.Mongo)
	assert.NotEqual(t, store.Config{}, cfg.Store)
	assert.NotEqual(t, EditorConfig{}, cfg.Editor)
	assert.NotEqual(t, ExecutionConfig{}, cfg.Execution)
	assert.NotEqual(t, AnalyticsConfig{}, cfg.Analytics)
	assert.NoError(t, cfg.Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "flowstudio", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultEditorConfig(t *testing.T) {
	cfg := DefaultEditorConfig()
	assert.Equal(t, history.DefaultLimit, cfg.HistoryLimit)
	assert.Equal(t, history.DefaultPasteOffset.X, cfg.PasteOffsetX)
	assert.Equal(t, history.DefaultPasteOffset.Y, cfg.PasteOffsetY)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}

func TestDefaultExecutionConfig(t *testing.T) {
	cfg := DefaultExecutionConfig()
	assert.Equal(t, "local", cfg.Runner)
	assert.Equal(t, execution.DefaultConfig(), cfg.CoordinatorConfig())
	assert.Equal(t, 8, cfg.MaxParallel)
	assert.Equal(t, 1000, cfg.MaxLoopIterations)
	assert.Empty(t, cfg.RemoteURL)
}

func TestDefaultAnalyticsConfig(t *testing.T) {
	cfg := DefaultAnalyticsConfig()
	assert.Equal(t, 100, cfg.MaxPaths)
	assert.False(t, cfg.IncludeZeroCounts)
	assert.Zero(t, cfg.CacheTTL)
}
