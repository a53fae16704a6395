// =============================================================================
// 📦 FlowStudio 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/history"
	"github.com/BaSui01/flowstudio/workflow/runner"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		Store:     store.DefaultConfig(),
		Editor:    DefaultEditorConfig(),
		Execution: DefaultExecutionConfig(),
		Analytics: DefaultAnalyticsConfig(),
		JWT:       JWTConfig{Issuer: "flowstudio"},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowstudio",
		SampleRate:   0.1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "flowstudio",
		Password:        "",
		Name:            "flowstudio",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultEditorConfig 返回默认编辑器配置
func DefaultEditorConfig() EditorConfig {
	return EditorConfig{
		HistoryLimit: history.DefaultLimit,
		PasteOffsetX: history.DefaultPasteOffset.X,
		PasteOffsetY: history.DefaultPasteOffset.Y,
		SessionTTL:   30 * time.Minute,
	}
}

// DefaultExecutionConfig 返回默认执行配置
func DefaultExecutionConfig() ExecutionConfig {
	coord := execution.DefaultConfig()
	local := runner.DefaultLocalConfig()
	remote := runner.DefaultRemoteConfig()
	return ExecutionConfig{
		Runner:              "local",
		MaxConcurrent:       coord.MaxConcurrent,
		MaxRetained:         coord.MaxRetained,
		MaxLogEntries:       coord.MaxLogEntries,
		MaxParallel:         local.MaxParallel,
		MaxLoopIterations:   local.MaxLoopIterations,
		NodeTimeout:         30 * time.Second,
		RemoteTimeout:       remote.RequestTimeout,
		RemoteCancelTimeout: remote.CancelTimeout,
	}
}

// DefaultAnalyticsConfig 返回默认分析配置
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		MaxPaths:          100,
		IncludeZeroCounts: false,
	}
}
