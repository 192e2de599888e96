package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep/cmd/root"
	"github.com/memkeep/memkeep/pkg/memory/store/sqlite"
	"github.com/memkeep/memkeep/pkg/server"
)

// memkeep runs a memkeep CLI command and returns its stdout.
func memkeep(t *testing.T, args ...string) string {
	t.Helper()

	var stdout bytes.Buffer
	err := root.Execute(t.Context(), nil, &stdout, io.Discard, args...)
	require.NoError(t, err)

	return stdout.String()
}

// writeConfig writes a sqlite-backed config file into a fresh directory and
// returns its path together with the database path it points at. extra is
// appended verbatim to the YAML.
func writeConfig(t *testing.T, extra string) (configPath, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "memkeep.db")
	configPath = filepath.Join(dir, "memkeep.yaml")

	cfg := fmt.Sprintf("backend: sqlite\nsqlite:\n  path: %s\n%s", dbPath, extra)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	return configPath, dbPath
}

// seedMemory writes a record straight into the database, bypassing the
// server. Tests use it to stage state the MCP surface cannot create, such as
// records under read-only pairs.
func seedMemory(t *testing.T, dbPath, namespace, key, content string) {
	t.Helper()

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	_, _, err = st.Put(t.Context(), namespace, key, content, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

// startServer boots "memkeep serve" over streamable HTTP on a unix socket
// and returns an HTTP client dialing that socket. The listener is bound
// before the server goroutine starts, so early requests queue instead of
// failing while the server is still coming up.
func startServer(t *testing.T, configPath string) *http.Client {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "memkeep.sock")

	ln, err := server.Listen(t.Context(), "unix://"+socketPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	file, err := ln.(*net.UnixListener).File()
	require.NoError(t, err)

	go func() {
		_ = root.Execute(t.Context(), nil, io.Discard, io.Discard,
			"serve",
			"--transport", "streamable-http",
			"--listen", fmt.Sprintf("fd://%d", file.Fd()),
			"--config", configPath)
	}()

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// connect opens an MCP session against a started server.
func connect(t *testing.T, client *http.Client) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint:   "http://localhost/mcp",
		HTTPClient: client,
	}
	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "memkeep-e2e", Version: "0.0.1"}, nil)

	session, err := mcpClient.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
	})

	return session
}

// callTool invokes a tool, requires success, and decodes the structured
// content into out when out is non-nil.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s failed: %s", name, resultText(res))

	if out != nil {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
}

// callToolErr invokes a tool expected to fail and returns the error text the
// agent would see.
func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()

	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.True(t, res.IsError, "tool %s unexpectedly succeeded", name)

	return resultText(res)
}

func resultText(res *mcp.CallToolResult) string {
	var buf bytes.Buffer
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			buf.WriteString(text.Text)
		}
	}
	return buf.String()
}
