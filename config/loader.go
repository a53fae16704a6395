// =============================================================================
// 📦 FlowStudio 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FLOWSTUDIO").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowstudio/workflow/analytics"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/history"
	"github.com/BaSui01/flowstudio/workflow/runner"
	"github.com/BaSui01/flowstudio/workflow/store"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 FlowStudio 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Database 数据库配置（store.type=sql 时使用）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 配置（store.type=redis 时使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Mongo 配置（store.type=mongo 时使用）
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Store 工作流定义存储配置
	Store store.Config `yaml:"store" env:"STORE"`

	// Editor 编辑器配置
	Editor EditorConfig `yaml:"editor" env:"EDITOR"`

	// Execution 执行协调器与运行器配置
	Execution ExecutionConfig `yaml:"execution" env:"EXECUTION"`

	// Analytics 静态分析配置
	Analytics AnalyticsConfig `yaml:"analytics" env:"ANALYTICS"`

	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 的每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，为空时拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS 证书与私钥，同时设置时 API 端口使用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// TLSEnabled 是否启用 HTTPS
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// EditorConfig 编辑历史配置
type EditorConfig struct {
	// 撤销栈深度
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// 粘贴节点的位置偏移
	PasteOffsetX float64 `yaml:"paste_offset_x" env:"PASTE_OFFSET_X"`
	PasteOffsetY float64 `yaml:"paste_offset_y" env:"PASTE_OFFSET_Y"`
	// 编辑会话空闲过期时间
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// ExecutionConfig 执行配置
type ExecutionConfig struct {
	// 运行器: local, remote
	Runner string `yaml:"runner" env:"RUNNER"`
	// 同时运行的执行数上限，0 表示不限
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 保留的终态执行数上限
	MaxRetained int `yaml:"max_retained" env:"MAX_RETAINED"`
	// 每个执行的日志条数上限
	MaxLogEntries int `yaml:"max_log_entries" env:"MAX_LOG_ENTRIES"`
	// 本地运行器单次运行内的节点并发上限
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL"`
	// 循环迭代保护上限
	MaxLoopIterations int `yaml:"max_loop_iterations" env:"MAX_LOOP_ITERATIONS"`
	// 工具与检索节点的默认超时
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	// 远端执行服务地址
	RemoteURL string `yaml:"remote_url" env:"REMOTE_URL"`
	// 远端请求超时
	RemoteTimeout time.Duration `yaml:"remote_timeout" env:"REMOTE_TIMEOUT"`
	// 远端取消确认等待时间
	RemoteCancelTimeout time.Duration `yaml:"remote_cancel_timeout" env:"REMOTE_CANCEL_TIMEOUT"`
}

// AnalyticsConfig 静态分析配置
type AnalyticsConfig struct {
	// 报告中保留的最大路径数
	MaxPaths int `yaml:"max_paths" env:"MAX_PATHS"`
	// 是否输出计数为零的节点类型
	IncludeZeroCounts bool `yaml:"include_zero_counts" env:"INCLUDE_ZERO_COUNTS"`
	// 报告缓存（Redis）过期时间，0 表示不缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 签发者
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FLOWSTUDIO",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	switch c.Store.Type {
	case store.StoreTypeMemory, store.StoreTypeRedis, store.StoreTypeSQL, store.StoreTypeMongo:
	default:
		errs = append(errs, fmt.Sprintf("unsupported store type %q", c.Store.Type))
	}
	if c.Store.Type == store.StoreTypeMongo && c.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required for the mongo store")
	}

	switch c.Execution.Runner {
	case "local":
	case "remote":
		if c.Execution.RemoteURL == "" {
			errs = append(errs, "execution.remote_url is required for the remote runner")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported runner %q", c.Execution.Runner))
	}
	if c.Execution.MaxConcurrent < 0 || c.Execution.MaxParallel < 0 {
		errs = append(errs, "execution limits must not be negative")
	}

	if c.Analytics.CacheTTL < 0 {
		errs = append(errs, "analytics.cache_ttl must not be negative")
	}

	if c.Editor.HistoryLimit <= 0 {
		errs = append(errs, "editor.history_limit must be positive")
	}

	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		errs = append(errs, "jwt requires a secret or a public key")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// =============================================================================
// 🔄 转换为组件配置
// =============================================================================

// CoordinatorConfig 返回执行协调器配置
func (e ExecutionConfig) CoordinatorConfig() execution.Config {
	return execution.Config{
		MaxConcurrent: e.MaxConcurrent,
		MaxRetained:   e.MaxRetained,
		MaxLogEntries: e.MaxLogEntries,
	}
}

// LocalRunnerConfig 返回本地运行器配置
func (e ExecutionConfig) LocalRunnerConfig() runner.LocalConfig {
	cfg := runner.DefaultLocalConfig()
	cfg.MaxParallel = e.MaxParallel
	if e.MaxLoopIterations > 0 {
		cfg.MaxLoopIterations = e.MaxLoopIterations
	}
	cfg.DefaultTimeout = e.NodeTimeout
	return cfg
}

// RemoteRunnerConfig 返回远端运行器配置
func (e ExecutionConfig) RemoteRunnerConfig() runner.RemoteConfig {
	cfg := runner.DefaultRemoteConfig()
	cfg.BaseURL = e.RemoteURL
	if e.RemoteTimeout > 0 {
		cfg.RequestTimeout = e.RemoteTimeout
	}
	if e.RemoteCancelTimeout > 0 {
		cfg.CancelTimeout = e.RemoteCancelTimeout
	}
	return cfg
}

// Options 返回分析引擎选项
func (a AnalyticsConfig) Options() []analytics.Option {
	opts := []analytics.Option{analytics.WithMaxPaths(a.MaxPaths)}
	if a.IncludeZeroCounts {
		opts = append(opts, analytics.WithZeroCounts())
	}
	return opts
}

// CacheVariant 区分不同分析选项下的缓存报告
func (a AnalyticsConfig) CacheVariant() string {
	return fmt.Sprintf("p%d-z%t", a.MaxPaths, a.IncludeZeroCounts)
}

// HistoryOptions 返回编辑历史选项
func (e EditorConfig) HistoryOptions() []history.Option {
	return []history.Option{
		history.WithLimit(e.HistoryLimit),
		history.WithPasteOffset(e.PasteOffsetX, e.PasteOffsetY),
	}
}
