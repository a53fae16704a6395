package database

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/flowstudio/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

type statsSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *statsSink) RecordDBConnections(database string, open, idle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, database)
}

func (s *statsSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	cfg := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, "postgres", manager.name)
	assert.Equal(t, 10, manager.GetStats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckReportsStats(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)
	mock.MatchExpectationsInOrder(false)

	for i := 0; i < 50; i++ {
		mock.ExpectPing()
	}
	mock.ExpectClose()

	sink := &statsSink{}
	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        2,
		MaxIdleConns:        1,
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop(), WithStatsRecorder("workflows", sink))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, manager.Close())

	sink.mu.Lock()
	assert.Equal(t, "workflows", sink.calls[0])
	sink.mu.Unlock()
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)
	mock.ExpectClose()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	assert.NoError(t, manager.Close(), "second close is a no-op")
	assert.Error(t, manager.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// 🧪 Open 测试
// =============================================================================

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{name: "postgres", cfg: config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432}, want: "postgres"},
		{name: "mysql", cfg: config.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306}, want: "mysql"},
		{name: "sqlite", cfg: config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, want: "sqlite"},
		{name: "sqlite without name", cfg: config.DatabaseConfig{Driver: "sqlite"}, wantErr: true},
		{name: "empty", cfg: config.DatabaseConfig{}, wantErr: true},
		{name: "unknown", cfg: config.DatabaseConfig{Driver: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxOpenConns: 25}, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, db.Exec("CREATE TABLE t (id INTEGER)").Error)
	require.NoError(t, db.Exec("INSERT INTO t VALUES (1)").Error)

	var n int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM t").Scan(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPoolConfigFrom(t *testing.T) {
	pool := PoolConfigFrom(config.DatabaseConfig{Driver: "postgres", MaxOpenConns: 7, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 7, pool.MaxOpenConns)
	assert.Equal(t, DefaultPoolConfig().MaxIdleConns, pool.MaxIdleConns)
	assert.Equal(t, time.Minute, pool.ConnMaxLifetime)

	mem := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxOpenConns: 7})
	assert.Equal(t, 1, mem.MaxOpenConns)
}
