// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowstudio/workflow/store"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, store.StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, "local", cfg.Execution.Runner)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins:
    - "https://studio.example.com"

store:
  type: redis
  key_prefix: "fs:"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

editor:
  history_limit: 20
  paste_offset_x: 10

execution:
  runner: remote
  remote_url: "https://runs.example.com"
  max_concurrent: 4
  remote_cancel_timeout: 2s

analytics:
  max_paths: 25
  include_zero_counts: true

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// YAML 值覆盖默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://studio.example.com"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, store.StoreTypeRedis, cfg.Store.Type)
	assert.Equal(t, "fs:", cfg.Store.KeyPrefix)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, 20, cfg.Editor.HistoryLimit)
	assert.Equal(t, 10.0, cfg.Editor.PasteOffsetX)
	assert.Equal(t, 40.0, cfg.Editor.PasteOffsetY)

	assert.Equal(t, "remote", cfg.Execution.Runner)
	assert.Equal(t, 4, cfg.Execution.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Execution.RemoteCancelTimeout)

	assert.Equal(t, 25, cfg.Analytics.MaxPaths)
	assert.True(t, cfg.Analytics.IncludeZeroCounts)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 未设置的值保持默认
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 1000, cfg.Execution.MaxRetained)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("FLOWSTUDIO_SERVER_HTTP_PORT", "7070")
	t.Setenv("FLOWSTUDIO_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("FLOWSTUDIO_STORE_TYPE", "sql")
	t.Setenv("FLOWSTUDIO_DATABASE_DRIVER", "sqlite")
	t.Setenv("FLOWSTUDIO_EXECUTION_NODE_TIMEOUT", "5s")
	t.Setenv("FLOWSTUDIO_EDITOR_PASTE_OFFSET_Y", "12.5")
	t.Setenv("FLOWSTUDIO_JWT_ENABLED", "true")
	t.Setenv("FLOWSTUDIO_JWT_SECRET", "s3cret")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, store.StoreTypeSQL, cfg.Store.Type)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Execution.NodeTimeout)
	assert.Equal(t, 12.5, cfg.Editor.PasteOffsetY)
	assert.True(t, cfg.JWT.Enabled)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  level: warn\n"), 0644))
	t.Setenv("FLOWSTUDIO_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("STUDIO_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("STUDIO").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("FLOWSTUDIO_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWSTUDIO_SERVER_HTTP_PORT")
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unterminated"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("FLOWSTUDIO_STORE_TYPE", "cassandra")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.Server.TLSCertFile = "server.crt" },
			wantErr: "must be set together",
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Store.Type = store.StoreTypeMongo },
			wantErr: "mongo.uri",
		},
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.Execution.Runner = "remote" },
			wantErr: "remote_url",
		},
		{
			name:    "unknown runner",
			mutate:  func(c *Config) { c.Execution.Runner = "lambda" },
			wantErr: "unsupported runner",
		},
		{
			name:    "negative limits",
			mutate:  func(c *Config) { c.Execution.MaxConcurrent = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "zero history",
			mutate:  func(c *Config) { c.Editor.HistoryLimit = 0 },
			wantErr: "history_limit",
		},
		{
			name:    "jwt without key",
			mutate:  func(c *Config) { c.JWT.Enabled = true },
			wantErr: "jwt requires",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Execution.Runner = "lambda"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "unsupported runner")
}

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres",
			config: DatabaseConfig{
				Driver: "postgres", Host: "db", Port: 5432, User: "u",
				Password: "p", Name: "flows", SSLMode: "disable",
			},
			expected: "host=db port=5432 user=u password=p dbname=flows sslmode=disable",
		},
		{
			name: "mysql",
			config: DatabaseConfig{
				Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "flows",
			},
			expected: "u:p@tcp(db:3306)/flows?parseTime=true&multiStatements=true",
		},
		{
			name:     "sqlite",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/tmp/flows.db"},
			expected: "/tmp/flows.db",
		},
		{
			name:     "unknown",
			config:   DatabaseConfig{Driver: "oracle"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":::"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

// --- 组件配置转换测试 ---

func TestExecutionConfig_Conversions(t *testing.T) {
	e := DefaultExecutionConfig()
	e.MaxConcurrent = 3
	e.MaxParallel = 2
	e.MaxLoopIterations = 0
	e.NodeTimeout = 4 * time.Second
	e.RemoteURL = "https://runs.example.com"
	e.RemoteTimeout = 0

	coord := e.CoordinatorConfig()
	assert.Equal(t, 3, coord.MaxConcurrent)
	assert.Equal(t, e.MaxRetained, coord.MaxRetained)
	assert.Equal(t, e.MaxLogEntries, coord.MaxLogEntries)

	local := e.LocalRunnerConfig()
	assert.Equal(t, 2, local.MaxParallel)
	assert.Equal(t, 1000, local.MaxLoopIterations, "zero keeps the runner default")
	assert.Equal(t, 4*time.Second, local.DefaultTimeout)

	remote := e.RemoteRunnerConfig()
	assert.Equal(t, "https://runs.example.com", remote.BaseURL)
	assert.Greater(t, remote.RequestTimeout, time.Duration(0), "zero keeps the runner default")
	assert.Equal(t, e.RemoteCancelTimeout, remote.CancelTimeout)
}

func TestAnalyticsConfig_Options(t *testing.T) {
	assert.Len(t, AnalyticsConfig{MaxPaths: 5}.Options(), 1)
	assert.Len(t, AnalyticsConfig{MaxPaths: 5, IncludeZeroCounts: true}.Options(), 2)
	assert.NotEqual(t,
		AnalyticsConfig{MaxPaths: 5}.CacheVariant(),
		AnalyticsConfig{MaxPaths: 5, IncludeZeroCounts: true}.CacheVariant())
}

func TestEditorConfig_HistoryOptions(t *testing.T) {
	assert.Len(t, DefaultEditorConfig().HistoryOptions(), 2)
}
