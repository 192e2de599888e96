package root

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowCommand_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"show"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "transport: stdio")
	assert.Contains(t, output, "backend: sqlite")
	assert.Contains(t, output, "port: 8000")
}

func TestConfigShowCommand_ReadsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "memkeep")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	configContent := `log_level: debug
backend: redis
redis:
  host: cache.internal
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "memkeep.yaml"), []byte(configContent), 0o644))

	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"show"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "log_level: debug")
	assert.Contains(t, output, "backend: redis")
	assert.Contains(t, output, "cache.internal")
}

func TestConfigShowCommand_DefaultBehavior(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// Running "config" without a subcommand defaults to "show".
	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "transport: stdio")
}

func TestConfigShowCommand_MalformedConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "memkeep")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "memkeep.yaml"), []byte("not: valid: yaml: content"), 0o644))

	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestConfigPathCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"path"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, ".config")
	assert.Contains(t, output, "memkeep")
	assert.Contains(t, output, "memkeep.yaml")
}

func TestConfigPathCommand_Explicit(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.yaml")

	cmd := newConfigCmd(&rootFlags{configPath: custom})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"path"})

	err := cmd.Execute()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), custom)
}

func TestConfigInitCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newConfigCmd(&rootFlags{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"init"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Created config file:")
	assert.Contains(t, output, "Created example trigger descriptor:")

	configPath := filepath.Join(home, ".config", "memkeep", "memkeep.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")

	example := filepath.Join(home, ".config", "memkeep", "triggers", "coding.example.json")
	data, err = os.ReadFile(example)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file_name")
}

func TestConfigInitCommand_RefusesOverwrite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "memkeep")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "memkeep.yaml"), []byte("backend: memory\n"), 0o644))

	cmd := newConfigCmd(&rootFlags{})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"init"})

	err := cmd.Execute()
	require.ErrorContains(t, err, "config file already exists")
}
