package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateReportsApplied(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"initial_schema"}, applied)

	// Already at the latest version: nothing to apply.
	applied, err = s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestSQLStatements(t *testing.T) {
	script := `-- leading comment
CREATE TABLE a (id TEXT);

-- a standalone comment between statements;
CREATE INDEX idx_a ON a(id);
`
	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id TEXT)", stmts[0])
	assert.Equal(t, "CREATE INDEX idx_a ON a(id)", stmts[1])
}
