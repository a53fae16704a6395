// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/internal/tlsutil"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/analytics"
)

// =============================================================================
// 🔌 Redis 客户端
// =============================================================================

// NewRedisClient 按应用配置创建 Redis 客户端，图存储与缓存共用
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return redis.NewClient(opts)
}

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager 缓存管理器。客户端由调用方拥有，Close 不会关闭它。
type Manager struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// Config 缓存配置
type Config struct {
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "flowstudio:cache:",
		DefaultTTL: 5 * time.Minute,
	}
}

// NewManager 创建缓存管理器
func NewManager(client redis.UniversalClient, config Config, logger *zap.Logger) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}
	m.logger.Info("cache manager initialized",
		zap.String("prefix", config.KeyPrefix),
		zap.Duration("default_ttl", config.DefaultTTL),
	)
	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 获取缓存值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	val, err := m.redis.Get(ctx, m.config.KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	return val, nil
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := m.redis.Set(ctx, m.config.KeyPrefix+key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// GetJSON 获取 JSON 缓存值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return nil
}

// SetJSON 设置 JSON 缓存值
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除缓存值
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = m.config.KeyPrefix + k
	}
	if err := m.redis.Del(ctx, prefixed...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return m.redis.Ping(ctx).Err()
}

// Close 停止使用缓存
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.logger.Info("closing cache manager")
	return nil
}

// =============================================================================
// 📈 分析报告缓存
// =============================================================================

// ReportCache 按定义内容缓存分析报告。同一定义在相同分析选项下的报告
// 总是相同的，因此以定义的内容摘要为键。
type ReportCache struct {
	manager *Manager
	variant string
	ttl     time.Duration
}

// NewReportCache 创建报告缓存。variant 区分不同的分析选项。
func NewReportCache(m *Manager, variant string, ttl time.Duration) *ReportCache {
	return &ReportCache{manager: m, variant: variant, ttl: ttl}
}

// Get 返回缓存的报告
func (c *ReportCache) Get(ctx context.Context, def *workflow.Definition) (analytics.Report, bool) {
	key, err := c.key(def)
	if err != nil {
		return analytics.Report{}, false
	}
	var report analytics.Report
	if err := c.manager.GetJSON(ctx, key, &report); err != nil {
		if !IsCacheMiss(err) {
			c.manager.logger.Debug("report cache read failed", zap.Error(err))
		}
		return analytics.Report{}, false
	}
	return report, true
}

// Put 写入报告，失败只记录日志
func (c *ReportCache) Put(ctx context.Context, def *workflow.Definition, report analytics.Report) {
	key, err := c.key(def)
	if err != nil {
		return
	}
	if err := c.manager.SetJSON(ctx, key, report, c.ttl); err != nil {
		c.manager.logger.Debug("report cache write failed", zap.Error(err))
	}
}

func (c *ReportCache) key(def *workflow.Definition) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "report:" + c.variant + ":" + hex.EncodeToString(sum[:]), nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

var (
	// ErrCacheMiss 缓存未命中错误
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 缓存已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
