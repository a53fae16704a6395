package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/flowstudio/testutil"
	"github.com/BaSui01/flowstudio/testutil/fixtures"
	"github.com/BaSui01/flowstudio/workflow"
)

// =============================================================================
// Shared behaviour
// =============================================================================

func stamped(def *workflow.Definition, at time.Time) *workflow.Definition {
	def.Metadata.CreatedAt = at
	def.Metadata.UpdatedAt = at
	return def
}

// runGraphStoreSuite checks the behaviour every backend must share.
func runGraphStoreSuite(t *testing.T, newStore func(t *testing.T) GraphStore) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(testutil.TestContext(t)))
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		def := stamped(fixtures.BranchingWorkflow(), base)

		require.NoError(t, s.Save(ctx, def))
		got, err := s.Get(ctx, def.ID)
		require.NoError(t, err)

		assert.Equal(t, def.NodeIDs(), got.NodeIDs())
		assert.Len(t, got.Edges, len(def.Edges))
		assert.Equal(t, def.Metadata.Name, got.Metadata.Name)
		assert.True(t, def.Metadata.UpdatedAt.Equal(got.Metadata.UpdatedAt))
		assert.Equal(t, 0.5, got.Variables["threshold"].Default)
		route, ok := got.Node("route")
		require.True(t, ok)
		assert.Equal(t, "output.score > threshold", route.Config.(*workflow.ConditionalConfig).Predicate)
	})

	t.Run("SaveDoesNotAliasCaller", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		def := stamped(fixtures.LinearWorkflow(), base)
		require.NoError(t, s.Save(ctx, def))

		def.SetName("renamed after save")
		got, err := s.Get(ctx, def.ID)
		require.NoError(t, err)
		assert.Equal(t, "linear", got.Metadata.Name)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		def := stamped(fixtures.LinearWorkflow(), base)
		require.NoError(t, s.Save(ctx, def))

		def.RemoveNode("save")
		def.Touch(base.Add(time.Minute))
		require.NoError(t, s.Save(ctx, def))

		got, err := s.Get(ctx, def.ID)
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 3)

		list, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 3, list[0].NodeCount)
		assert.True(t, list[0].UpdatedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("RejectsMissingID", func(t *testing.T) {
		s := newStore(t)
		err := s.Save(testutil.TestContext(t), workflow.New("", "anonymous"))
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, s.Save(testutil.TestContext(t), nil), ErrInvalidInput)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		def := stamped(fixtures.LinearWorkflow(), base)
		require.NoError(t, s.Save(ctx, def))

		require.NoError(t, s.Delete(ctx, def.ID))
		_, err := s.Get(ctx, def.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		list, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListOrderAndPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := testutil.TestContext(t)
		require.NoError(t, s.Save(ctx, stamped(fixtures.LinearWorkflow(), base)))
		require.NoError(t, s.Save(ctx, stamped(fixtures.BranchingWorkflow(), base.Add(2*time.Minute))))
		require.NoError(t, s.Save(ctx, stamped(fixtures.LoopWorkflow(), base.Add(time.Minute))))

		list, err := s.List(ctx, ListOptions{})
		require.NoError(t, err)
		ids := make([]string, len(list))
		for i, sum := range list {
			ids[i] = sum.ID
		}
		assert.Equal(t, []string{"wf-branch", "wf-loop", "wf-linear"}, ids)
		assert.Equal(t, "branching", list[0].Name)
		assert.Equal(t, 6, list[0].NodeCount)

		paged, err := s.List(ctx, ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "wf-loop", paged[0].ID)

		past, err := s.List(ctx, ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, past)
	})
}

// =============================================================================
// Backends
// =============================================================================

func TestMemoryStore(t *testing.T) {
	runGraphStoreSuite(t, func(t *testing.T) GraphStore {
		s := NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	ctx := context.Background()

	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
	assert.ErrorIs(t, s.Save(ctx, fixtures.LinearWorkflow()), ErrStoreClosed)
	_, err := s.Get(ctx, "wf-linear")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.List(ctx, ListOptions{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test:", nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	runGraphStoreSuite(t, func(t *testing.T) GraphStore {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStore_Keys(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := testutil.TestContext(t)
	require.NoError(t, s.Save(ctx, fixtures.LinearWorkflow()))

	assert.True(t, mr.Exists("test:workflow:doc:wf-linear"))
	assert.True(t, mr.Exists("test:workflow:summary"))
	members, err := mr.ZMembers("test:workflow:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-linear"}, members)
}

func TestRedisStore_SkipsUnreadableSummary(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := testutil.TestContext(t)
	require.NoError(t, s.Save(ctx, fixtures.LinearWorkflow()))
	mr.HSet("test:workflow:summary", "wf-linear", "{not json")

	list, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func newGormDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each connection to :memory: is its own database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGormStore(t *testing.T) {
	runGraphStoreSuite(t, func(t *testing.T) GraphStore {
		s, err := NewGormStore(newGormDB(t), nil)
		require.NoError(t, err)
		return s
	})
}

func TestNewGormStore_NilDB(t *testing.T) {
	_, err := NewGormStore(nil, nil)
	assert.Error(t, err)
}

// TestMongoStore runs against a real server when FLOWSTUDIO_TEST_MONGO_URI
// is set.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("FLOWSTUDIO_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FLOWSTUDIO_TEST_MONGO_URI not set")
	}
	runGraphStoreSuite(t, func(t *testing.T) GraphStore {
		client, err := mongo.Connect(options.Client().ApplyURI(uri))
		require.NoError(t, err)
		ctx := testutil.TestContext(t)
		coll := "workflows_" + time.Now().Format("150405.000000000")
		s, err := NewMongoStore(ctx, client, "flowstudio_test", coll, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = client.Database("flowstudio_test").Collection(coll).Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestMongoDocument(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	def := stamped(fixtures.LoopWorkflow(), at)

	doc, err := newMongoDocument(def)
	require.NoError(t, err)
	assert.Equal(t, "wf-loop", doc.ID)
	assert.Equal(t, len(def.Nodes), doc.NodeCount)

	back, err := decode([]byte(doc.Document))
	require.NoError(t, err)
	assert.Equal(t, def.NodeIDs(), back.NodeIDs())

	sum := doc.summary()
	assert.Equal(t, "wf-loop", sum.ID)
	assert.True(t, at.Equal(sum.UpdatedAt))
}

// =============================================================================
// Factory
// =============================================================================

func TestNew(t *testing.T) {
	ctx := testutil.TestContext(t)

	s, err := New(ctx, DefaultConfig(), Backends{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	for _, typ := range []StoreType{StoreTypeRedis, StoreTypeSQL, StoreTypeMongo} {
		_, err := New(ctx, Config{Type: typ}, Backends{}, nil)
		assert.Error(t, err, "%s without a backend", typ)
	}

	_, err = New(ctx, Config{Type: "etcd"}, Backends{}, nil)
	assert.Error(t, err)

	s, err = New(ctx, Config{Type: StoreTypeSQL}, Backends{DB: newGormDB(t)}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)

	mr := miniredis.RunT(t)
	s, err = New(ctx, Config{Type: StoreTypeRedis}, Backends{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{1, 2, 3, 4}, page(items, ListOptions{}))
	assert.Equal(t, []int{2, 3}, page(items, ListOptions{Offset: 1, Limit: 2}))
	assert.Equal(t, []int{4}, page(items, ListOptions{Offset: 3, Limit: 5}))
	assert.Equal(t, []int{}, page(items, ListOptions{Offset: 4}))
}
