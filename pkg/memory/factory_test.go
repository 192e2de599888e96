package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep/pkg/config"
	"github.com/memkeep/memkeep/pkg/memory/store/inmemory"
	"github.com/memkeep/memkeep/pkg/memory/store/sqlite"
)

func TestNewStoreMemory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backend = config.BackendMemory

	st, err := NewStore(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.IsType(t, &inmemory.Store{}, st)
}

func TestNewStoreSQLite(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "memories.db")

	st, err := NewStore(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.IsType(t, &sqlite.Store{}, st)
}

func TestNewStoreBackendNameIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backend = "Memory"

	st, err := NewStore(t.Context(), cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestNewStoreInvalidBackend(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backend = "postgresql"

	_, err := NewStore(t.Context(), cfg)
	require.EqualError(t, err, "invalid backend 'postgresql': must be one of: memory, sqlite, redis, mongodb")
}
