package migration

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/internal/database"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dbType), func(t *testing.T) {
			files, err := AvailableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, MigrationFile{Version: 1, Name: "create_workflows"}, files[0])
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].Version, files[i-1].Version)
			}
		})
	}

	_, err := AvailableMigrations("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_InvalidArgs(t *testing.T) {
	_, err := NewMigrator(nil, Config{DatabaseType: DatabaseTypeSQLite}, nil)
	assert.ErrorContains(t, err, "database connection is required")

	_, err = NewMigratorFromConfig(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "invalid database type")
}

func TestStatusTable(t *testing.T) {
	out := StatusTable([]MigrationStatus{
		{Version: 1, Name: "create_workflows", Applied: true},
		{Version: 2, Name: "add_tags"},
	})

	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "000001")
	assert.Contains(t, out, "create_workflows")
	assert.Contains(t, out, "Applied")
	assert.Contains(t, out, "Pending")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Pending", statusLabel(MigrationStatus{}))
	assert.Equal(t, "Applied", statusLabel(MigrationStatus{Applied: true}))
	assert.Equal(t, "Dirty", statusLabel(MigrationStatus{Applied: true, Dirty: true}))
}

// --- SQLite ---

func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping sqlite migration test in short mode")
	}

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := NewMigrator(sqlDB, Config{DatabaseType: DatabaseTypeSQLite}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLite(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 重复执行无变更
	require.NoError(t, m.Up(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Applied)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_CancelledContext(t *testing.T) {
	m := newSQLiteMigrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Up(ctx), context.Canceled)
}

func TestCLI_Output(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, buf.String(), "Current version: 1")

	buf.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, buf.String(), "create_workflows")
	assert.Contains(t, buf.String(), "Total: 1, Applied: 1, Pending: 0")

	buf.Reset()
	require.NoError(t, cli.RunInfo(ctx))
	assert.Contains(t, buf.String(), "Applied Migrations: 1")
}

func TestMigrateLogger_FollowsZapLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	verbose := &migrateLogger{logger: zap.New(core)}
	assert.True(t, verbose.Verbose())

	verbose.Printf("applied %d\n", 1)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "applied 1", logs.All()[0].Message)

	quiet := &migrateLogger{logger: zap.NewNop()}
	assert.False(t, quiet.Verbose())
}
