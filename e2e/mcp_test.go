package e2e_test

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type readResult struct {
	Namespace  string `json:"namespace"`
	Key        string `json:"key"`
	Content    string `json:"content"`
	IsReadOnly bool   `json:"is_read_only"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type namespacesResult struct {
	Type       string `json:"type"`
	Count      int    `json:"count"`
	Namespaces []struct {
		Name      string `json:"name"`
		FileCount int    `json:"file_count"`
	} `json:"namespaces"`
}

type memoriesResult struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
	Memories  []struct {
		Key        string `json:"key"`
		IsReadOnly bool   `json:"is_read_only"`
	} `json:"memories"`
}

func TestMCPToolCatalog(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "")
	session := connect(t, startServer(t, configPath))

	var names []string
	for tool, err := range session.Tools(t.Context(), nil) {
		require.NoError(t, err)
		names = append(names, tool.Name)
	}

	assert.ElementsMatch(t, []string{"ls", "read_file", "write_file", "edit_file"}, names)
}

func TestMCPMemoryLifecycle(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "")
	session := connect(t, startServer(t, configPath))

	var wrote writeResult
	callTool(t, session, "write_file", map[string]any{
		"namespace": "preferences",
		"key":       "tone",
		"content":   "Be concise.",
	}, &wrote)
	assert.True(t, wrote.Success)
	assert.Equal(t, "Memory created successfully", wrote.Message)

	callTool(t, session, "write_file", map[string]any{
		"namespace": "preferences",
		"key":       "tone",
		"content":   "Be direct.",
	}, &wrote)
	assert.Equal(t, "Memory updated successfully", wrote.Message)

	var read readResult
	callTool(t, session, "read_file", map[string]any{
		"namespace": "preferences",
		"key":       "tone",
	}, &read)
	assert.Equal(t, "Be direct.", read.Content)
	assert.False(t, read.IsReadOnly)
	assert.NotEqual(t, read.CreatedAt, read.UpdatedAt)

	callTool(t, session, "edit_file", map[string]any{
		"namespace": "preferences",
		"key":       "tone",
		"content":   "Be brief.",
	}, &wrote)
	assert.Equal(t, "Memory updated successfully", wrote.Message)

	callTool(t, session, "read_file", map[string]any{
		"namespace": "preferences",
		"key":       "tone",
	}, &read)
	assert.Equal(t, "Be brief.", read.Content)

	var namespaces namespacesResult
	callTool(t, session, "ls", nil, &namespaces)
	assert.Equal(t, "namespaces", namespaces.Type)
	require.Len(t, namespaces.Namespaces, 1)
	assert.Equal(t, "preferences", namespaces.Namespaces[0].Name)
	assert.Equal(t, 1, namespaces.Namespaces[0].FileCount)

	var memories memoriesResult
	callTool(t, session, "ls", map[string]any{"path": "preferences"}, &memories)
	assert.Equal(t, "memories", memories.Type)
	assert.Equal(t, "preferences", memories.Namespace)
	require.Len(t, memories.Memories, 1)
	assert.Equal(t, "tone", memories.Memories[0].Key)
}

func TestMCPEditRequiresExistingMemory(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "")
	session := connect(t, startServer(t, configPath))

	msg := callToolErr(t, session, "edit_file", map[string]any{
		"namespace": "notes",
		"key":       "ghost",
		"content":   "anything",
	})

	assert.Contains(t, msg, "not_found")
	assert.Contains(t, msg, "Memory 'ghost' not found in namespace 'notes'")
	assert.Contains(t, msg, "Use write_file to create new memories.")
}

func TestMCPReadOnlyMemories(t *testing.T) {
	t.Parallel()

	configPath, dbPath := writeConfig(t, "read_only_files:\n  - core/persona\n")
	seedMemory(t, dbPath, "core", "persona", "You are a helpful assistant.")
	session := connect(t, startServer(t, configPath))

	var read readResult
	callTool(t, session, "read_file", map[string]any{"namespace": "core", "key": "persona"}, &read)
	assert.Equal(t, "You are a helpful assistant.", read.Content)
	assert.True(t, read.IsReadOnly)

	msg := callToolErr(t, session, "write_file", map[string]any{
		"namespace": "core",
		"key":       "persona",
		"content":   "overwritten",
	})
	assert.Contains(t, msg, "permission_denied")
	assert.Contains(t, msg, "Memory 'core/persona' is marked as read-only")

	msg = callToolErr(t, session, "edit_file", map[string]any{
		"namespace": "core",
		"key":       "persona",
		"content":   "overwritten",
	})
	assert.Contains(t, msg, "permission_denied")

	callTool(t, session, "read_file", map[string]any{"namespace": "core", "key": "persona"}, &read)
	assert.Equal(t, "You are a helpful assistant.", read.Content)
}

func TestMCPNamespaceAllowList(t *testing.T) {
	t.Parallel()

	configPath, dbPath := writeConfig(t, "allowed_namespaces:\n  - preferences\n")
	seedMemory(t, dbPath, "preferences", "tone", "Be concise.")
	seedMemory(t, dbPath, "notes", "secret", "hidden")
	session := connect(t, startServer(t, configPath))

	var namespaces namespacesResult
	callTool(t, session, "ls", nil, &namespaces)
	require.Len(t, namespaces.Namespaces, 1)
	assert.Equal(t, "preferences", namespaces.Namespaces[0].Name)

	msg := callToolErr(t, session, "read_file", map[string]any{"namespace": "notes", "key": "secret"})
	assert.Contains(t, msg, "permission_denied")
	assert.Contains(t, msg, "Namespace 'notes' is not in the allowed list")

	msg = callToolErr(t, session, "write_file", map[string]any{
		"namespace": "notes",
		"key":       "another",
		"content":   "nope",
	})
	assert.Contains(t, msg, "permission_denied")
}

func TestMCPTriggerGuidance(t *testing.T) {
	t.Parallel()

	triggersDir := t.TempDir()
	descriptor := `{
	// Guidance for coding memories.
	"files": [
		{
			"file_name": "python",
			"file_description": "Python style preferences",
			"read_trigger": "Before writing Python code",
			"write_trigger": "When the user states a Python preference",
			"update_trigger": "When a stated preference changes",
		},
	],
}`
	require.NoError(t, os.WriteFile(filepath.Join(triggersDir, "coding.json"), []byte(descriptor), 0o644))

	configPath, _ := writeConfig(t, fmt.Sprintf("triggers_dir: %s\n", triggersDir))
	session := connect(t, startServer(t, configPath))

	descriptions := map[string]string{}
	for tool, err := range session.Tools(t.Context(), nil) {
		require.NoError(t, err)
		descriptions[tool.Name] = tool.Description
	}

	assert.Contains(t, descriptions["ls"], "Configured Files:")
	assert.Contains(t, descriptions["ls"], "coding:")
	assert.Contains(t, descriptions["ls"], "- python: Python style preferences")
	assert.Contains(t, descriptions["read_file"], "When to read:")
	assert.Contains(t, descriptions["read_file"], "- coding/python: Before writing Python code")
	assert.Contains(t, descriptions["write_file"], "When to create:")
	assert.Contains(t, descriptions["edit_file"], "When to update:")
}

func TestServerPing(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "")
	client := startServer(t, configPath)

	resp, err := client.Get("http://localhost/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
