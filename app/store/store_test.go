package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConn opens a sqlite-backed connection with the schema in place
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	connector := NewConnector(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.EnsureSchema(context.Background()))
	return conn
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{
			name:       "mysql",
			cfg:        Config{Driver: "mysql", Host: "mysql-service", User: "root", Password: "password", Name: "taskdb", Port: 3306},
			wantDriver: "mysql",
			wantDSN:    "root:password@tcp(mysql-service:3306)/taskdb",
		},
		{
			name:       "sqlite",
			cfg:        Config{Driver: "sqlite", Path: "/tmp/tasks.db"},
			wantDriver: "sqlite",
			wantDSN:    "/tmp/tasks.db",
		},
		{
			name:    "unsupported driver",
			cfg:     Config{Driver: "postgres"},
			wantErr: true,
		},
		{
			name:    "empty driver",
			cfg:     Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := tt.cfg.DSN()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}

func TestConnector_Connect(t *testing.T) {
	connector := NewConnector(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

func TestConnector_Connect_badDriver(t *testing.T) {
	connector := NewConnector(Config{Driver: "oracle"})
	_, err := connector.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestConnector_Connect_unreachable(t *testing.T) {
	// sqlite can't create a database file in a directory that doesn't exist
	connector := NewConnector(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "no", "such", "dir", "test.db")})
	_, err := connector.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestConn_CreateAndList(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	tasks, err := conn.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "empty table produces empty sequence")

	created, err := conn.CreateTask(ctx, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, "buy milk", created.Name)
	assert.NotZero(t, created.ID, "id is store-assigned")

	tasks, err = conn.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, created, tasks[0])
}

func TestConn_CreateTask_storedAsIs(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	// no application-side validation, empty and odd names are accepted
	for _, name := range []string{"", "   ", "<script>alert(1)</script>", "задача"} {
		task, err := conn.CreateTask(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, name, task.Name)
	}

	tasks, err := conn.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 4)
}

func TestConn_SequentialInserts(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	const n = 25
	seen := map[int64]bool{}
	for i := 0; i < n; i++ {
		task, err := conn.CreateTask(ctx, fmt.Sprintf("task-%d", i))
		require.NoError(t, err)
		assert.False(t, seen[task.ID], "ids are unique")
		seen[task.ID] = true
	}

	tasks, err := conn.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, n)
}

func TestConn_CountTasks(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	count, err := conn.CountTasks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = conn.CreateTask(ctx, "one")
	require.NoError(t, err)
	_, err = conn.CreateTask(ctx, "two")
	require.NoError(t, err)

	count, err = conn.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConn_QueryErrors(t *testing.T) {
	connector := NewConnector(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	// no schema created - every statement against the missing table fails
	_, err = conn.ListTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuery)

	_, err = conn.CreateTask(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuery)

	_, err = conn.CountTasks(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuery)
}

func TestConn_EnsureSchema_idempotent(t *testing.T) {
	conn := newTestConn(t)
	require.NoError(t, conn.EnsureSchema(context.Background()))

	_, err := conn.CreateTask(context.Background(), "still here")
	require.NoError(t, err)
}
