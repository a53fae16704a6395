package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/testutil/fixtures"
	"github.com/BaSui01/flowstudio/workflow/analytics"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	client := NewRedisClient(cfg)
	t.Cleanup(func() { _ = client.Close() })

	manager, err := NewManager(client, Config{KeyPrefix: "test:", DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewRedisClient(t *testing.T) {
	cfg := config.DefaultRedisConfig()
	cfg.TLS = true
	client := NewRedisClient(cfg)
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, cfg.Addr, opts.Addr)
	require.NotNil(t, opts.TLSConfig)
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	m, err := NewManager(client, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, m.config.DefaultTTL)
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
	// 键带前缀
	assert.True(t, mr.Exists("test:test-key"))
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))
	require.NoError(t, manager.Delete(ctx, "test-key"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "test-key")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type testData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	require.NoError(t, manager.SetJSON(ctx, "test-json", testData{Name: "test", Value: 123}, time.Minute))

	var result testData
	require.NoError(t, manager.GetJSON(ctx, "test-json", &result))
	assert.Equal(t, testData{Name: "test", Value: 123}, result)

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), time.Minute))

	require.NoError(t, manager.Set(ctx, "not-json", "not a json", time.Minute))
	var m map[string]any
	assert.Error(t, manager.GetJSON(ctx, "not-json", &m))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "value", 100*time.Millisecond))
	require.NoError(t, manager.Set(ctx, "default", "value", 0))
	assert.Equal(t, time.Minute, mr.TTL("test:default"))

	mr.FastForward(200 * time.Millisecond)

	_, err := manager.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
			value, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
		}(i)
	}
	wg.Wait()
}

// =============================================================================
// 🧪 ReportCache 测试
// =============================================================================

func TestReportCache_RoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()
	rc := NewReportCache(manager, "default", time.Minute)

	def := fixtures.BranchingWorkflow()
	_, ok := rc.Get(ctx, def)
	assert.False(t, ok)

	report := analytics.Analyze(def)
	rc.Put(ctx, def, report)

	cached, ok := rc.Get(ctx, def)
	require.True(t, ok)
	assert.Equal(t, report.ComplexityScore, cached.ComplexityScore)
	assert.Equal(t, report.ComplexityLevel, cached.ComplexityLevel)
	assert.Equal(t, report.ExecutionPaths, cached.ExecutionPaths)
	assert.Equal(t, report.NodeTypeDistribution, cached.NodeTypeDistribution)
}

func TestReportCache_KeyFollowsContent(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()
	rc := NewReportCache(manager, "default", time.Minute)

	def := fixtures.LinearWorkflow()
	rc.Put(ctx, def, analytics.Analyze(def))

	changed := def.Clone()
	changed.SetName("renamed")
	_, ok := rc.Get(ctx, changed)
	assert.False(t, ok)

	other := NewReportCache(manager, "zero-counts", time.Minute)
	_, ok = other.Get(ctx, def)
	assert.False(t, ok)
}
