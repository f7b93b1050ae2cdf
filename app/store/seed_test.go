package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSeed(t *testing.T) {
	path := writeSeedFile(t, `# initial tasks
tasks:
  - buy milk
  - walk the dog
`)

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"buy milk", "walk the dog"}, seed.Tasks)
}

func TestLoadSeed_errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"no tasks", "tasks: []"},
		{"wrong shape", "tasks: not-a-list"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSeed(writeSeedFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSeed(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})
}

func TestApplySeed(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	seed := &SeedFile{Tasks: []string{"first", "second", "third"}}

	n, err := ApplySeed(ctx, conn, seed)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tasks, err := conn.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	// second application is a no-op, the table is not empty anymore
	n, err = ApplySeed(ctx, conn, seed)
	require.NoError(t, err)
	assert.Zero(t, n)

	tasks, err = conn.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestApplySeed_nonEmptyTable(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	_, err := conn.CreateTask(ctx, "existing")
	require.NoError(t, err)

	n, err := ApplySeed(ctx, conn, &SeedFile{Tasks: []string{"seeded"}})
	require.NoError(t, err)
	assert.Zero(t, n, "seed must not touch a non-empty table")

	tasks, err := conn.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "existing", tasks[0].Name)
}

func TestSeedSchema(t *testing.T) {
	schema := SeedSchema()
	require.NotNil(t, schema)
}
