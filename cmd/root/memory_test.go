package root

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/memory/store/sqlite"
)

// testConfig writes a config file backed by a throwaway SQLite database and
// returns both paths. Extra config lines are appended verbatim.
func testConfig(t *testing.T, extra string) (configPath, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "memories.db")
	configPath = filepath.Join(dir, "memkeep.yaml")

	content := fmt.Sprintf("backend: sqlite\nsqlite:\n  path: %s\n%s", dbPath, extra)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	return configPath, dbPath
}

// seedMemories writes records straight into the database, keyed by
// "namespace/key" paths.
func seedMemories(t *testing.T, dbPath string, records map[string]string) {
	t.Helper()

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, st.Close())
	}()

	for path, content := range records {
		namespace, key, ok := strings.Cut(path, "/")
		require.True(t, ok, "seed path %q must be namespace/key", path)
		_, _, err := st.Put(t.Context(), namespace, key, content, time.Now().UTC())
		require.NoError(t, err)
	}
}

func TestMemoryListEmptyStore(t *testing.T) {
	configPath, _ := testConfig(t, "")

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "list", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "No memories stored.")
}

func TestMemoryListNamespaces(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha":       "a",
		"notes/beta":        "b",
		"preferences/style": "c",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "list", "--config", configPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "NAMESPACE")
	assert.Contains(t, out, "RECORDS")
	assert.Contains(t, out, "notes")
	assert.Contains(t, out, "preferences")
}

func TestMemoryListNamespaceKeys(t *testing.T) {
	configPath, dbPath := testConfig(t, "read_only_files:\n  - notes/alpha\n")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "a",
		"notes/beta":  "b",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "list", "notes", "--config", configPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "READ-ONLY")
	assert.Contains(t, out, "yes")
}

func TestMemoryListIgnoresNamespaceAllowList(t *testing.T) {
	configPath, dbPath := testConfig(t, "allowed_namespaces:\n  - preferences\n")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "a",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "list", "--config", configPath)
	require.NoError(t, err)

	// Administrative commands see every namespace.
	assert.Contains(t, stdout.String(), "notes")
}

func TestMemoryShow(t *testing.T) {
	configPath, dbPath := testConfig(t, "read_only_files:\n  - notes/alpha\n")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "tabs, not spaces",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "show", "notes", "alpha", "--config", configPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Namespace:  notes")
	assert.Contains(t, out, "Key:        alpha")
	assert.Contains(t, out, "Read-only:  true")
	assert.Contains(t, out, "Content:\ntabs, not spaces")
}

func TestMemoryShowNotFound(t *testing.T) {
	configPath, _ := testConfig(t, "")

	err := Execute(t.Context(), nil, io.Discard, io.Discard, "memory", "show", "notes", "ghost", "--config", configPath)
	require.ErrorContains(t, err, "Memory 'ghost' not found in namespace 'notes'")
}

func TestMemorySearch(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"coding/python-style": "a",
		"coding/python-libs":  "b",
		"coding/git-workflow": "c",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "search", "coding", "python", "--config", configPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "python-style")
	assert.Contains(t, out, "python-libs")
	assert.NotContains(t, out, "git-workflow")
}

func TestMemorySearchNoMatches(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"coding/git-workflow": "c",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "search", "coding", "python", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "No matching memories found.")
}

func TestMemoryExport(t *testing.T) {
	configPath, dbPath := testConfig(t, "read_only_files:\n  - core/persona\n")
	seedMemories(t, dbPath, map[string]string{
		"core/persona": "be kind",
		"notes/alpha":  "a",
		"notes/beta":   "b",
	})

	exportPath := filepath.Join(t.TempDir(), "memories.json")

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "export", exportPath, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Exported 3 memories from 2 namespaces")

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)

	var dump exportDump
	require.NoError(t, json.Unmarshal(data, &dump))
	assert.False(t, dump.ExportedAt.IsZero())
	require.Len(t, dump.Namespaces, 2)

	records := make(map[string]exportRecord)
	for _, ns := range dump.Namespaces {
		for _, rec := range ns.Records {
			records[rec.Namespace+"/"+rec.Key] = rec
		}
	}
	require.Len(t, records, 3)
	assert.Equal(t, "be kind", records["core/persona"].Content)
	assert.True(t, records["core/persona"].IsReadOnly)
	assert.False(t, records["notes/alpha"].IsReadOnly)
}

func TestMemoryForgetForce(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "a",
	})

	var stdout bytes.Buffer
	err := Execute(t.Context(), nil, &stdout, io.Discard, "memory", "forget", "notes", "alpha", "--force", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Memory 'notes/alpha' deleted.")

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Get(t.Context(), "notes", "alpha")
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestMemoryForgetPromptAccepted(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "a",
	})

	var stdout bytes.Buffer
	stdin := strings.NewReader("y\n")
	err := Execute(t.Context(), stdin, &stdout, io.Discard, "memory", "forget", "notes", "alpha", "--config", configPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Forget memory 'notes/alpha'?")
	assert.Contains(t, out, "Memory 'notes/alpha' deleted.")
}

func TestMemoryForgetPromptDeclined(t *testing.T) {
	configPath, dbPath := testConfig(t, "")
	seedMemories(t, dbPath, map[string]string{
		"notes/alpha": "a",
	})

	var stdout bytes.Buffer
	stdin := strings.NewReader("n\n")
	err := Execute(t.Context(), stdin, &stdout, io.Discard, "memory", "forget", "notes", "alpha", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Aborted.")

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Get(t.Context(), "notes", "alpha")
	require.NoError(t, err)
}

func TestMemoryForgetNotFound(t *testing.T) {
	configPath, _ := testConfig(t, "")

	err := Execute(t.Context(), nil, io.Discard, io.Discard, "memory", "forget", "notes", "ghost", "--force", "--config", configPath)
	require.ErrorContains(t, err, "Memory 'ghost' not found in namespace 'notes'")
}

func TestMemoryForgetInvalidIdentifier(t *testing.T) {
	err := Execute(t.Context(), nil, io.Discard, io.Discard, "memory", "forget", "bad name", "key", "--force")
	require.ErrorContains(t, err, "must contain only alphanumeric characters, hyphens, and underscores")
}
