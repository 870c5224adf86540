package db

import (
	"path/filepath"
	"testing"

	"github.com/kasuganosora/learnquest/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "oracle"})
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{Mode: ModeMemory})
	require.NoError(t, err)
	require.NoError(t, gdb.Exec("CREATE TABLE ping (id INTEGER)").Error)
}

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lq.db")
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, gdb.Exec("CREATE TABLE ping (id INTEGER)").Error)
	assert.FileExists(t, path)
}
