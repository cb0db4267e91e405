package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		name := strings.TrimPrefix(f, "migrations/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("migration %s is neither up nor down", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitialSchemaHasEngineTables(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/000001_init.up.sql")
	require.NoError(t, err)

	for _, table := range []string{"users", "questions", "test_modules", "sessions", "module_runs", "answers"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, string(body), "UNIQUE (session_id, module_index)")
	assert.Contains(t, string(body), "UNIQUE (module_run_id, question_id)")
}
