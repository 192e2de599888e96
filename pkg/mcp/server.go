// Package mcp exposes the memory service as an MCP tool server speaking
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memkeep/memkeep/pkg/memory"
	"github.com/memkeep/memkeep/pkg/triggers"
)

const lsBaseDescription = `List available memory namespaces or memories within a namespace.

This tool allows you to explore the available memory namespaces (categories)
and the memories (files) within each namespace.

Args:
    path: Optional path to explore:
        - Empty string ("") or omit: Lists all available namespaces
        - "namespace_name": Lists all memories/files in that namespace

Returns either:
    - "namespaces": List of available namespace objects with file counts
    - "memories": List of memory objects in the specified namespace

Examples:
    ls() -> Lists all namespaces
    ls("programming-style") -> Lists all memories in programming-style namespace`

const readFileBaseDescription = `Read a memory/file from the store.

Use this tool to retrieve the content of a specific memory. This is useful
when you need to recall user preferences, context, or any previously stored
information.

Args:
    namespace: The memory category/namespace (e.g., "programming-style", "preferences")
    key: The specific memory identifier within the namespace

Returns the memory data including:
    - content: The actual memory content
    - namespace: The namespace it belongs to
    - key: The memory identifier
    - is_read_only: Whether this memory is protected from modification
    - created_at: When the memory was created
    - updated_at: When the memory was last updated

Examples:
    read_file("programming-style", "python-preferences")
    read_file("writing-style", "tone")`

const writeFileBaseDescription = `Create or overwrite a memory/file in the store.

Use this tool to save new memories or update existing ones. This will create
the namespace if it doesn't exist and will overwrite any existing memory with
the same key.

Args:
    namespace: The memory category/namespace (e.g., "programming-style", "preferences")
    key: The memory identifier (use descriptive names like "python-type-hints")
    content: The content to store (can be any text, instructions, preferences, etc.)

Returns the operation result including:
    - success: Whether the operation succeeded
    - message: Success or error message
    - namespace: The namespace used
    - key: The memory identifier
    - created_at: Timestamp of creation
    - updated_at: Timestamp of last update

Examples:
    write_file("programming-style", "python-preferences", "Always use type hints and docstrings")
    write_file("preferences", "communication-style", "Be concise and direct")`

const editFileBaseDescription = `Edit an existing memory/file.

Use this tool to update an existing memory. Unlike write_file, this will fail
if the memory doesn't exist, providing safety against typos in key names.

Args:
    namespace: The memory category/namespace
    key: The memory identifier (must exist)
    content: The new content to replace the existing content

Returns the operation result including:
    - success: Whether the operation succeeded
    - message: Success or error message
    - namespace: The namespace used
    - key: The memory identifier
    - created_at: Original creation timestamp
    - updated_at: New update timestamp

Examples:
    edit_file("programming-style", "python-preferences", "Updated preferences...")
    edit_file("context", "project-background", "Additional context...")`

// Server wires the memory service into an MCP tool server. Tool
// descriptions grow trigger guidance when the registry has descriptors.
type Server struct {
	memories *memory.Service
	triggers *triggers.Registry
	server   *mcp.Server
}

func New(memories *memory.Service, reg *triggers.Registry, version string) *Server {
	s := &Server{
		memories: memories,
		triggers: reg,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "memkeep",
		Version: version,
	}, nil)

	s.registerTools()

	return s
}

// toolDescriptions composes per-tool descriptions: the base text plus the
// trigger guidance block when the registry carries descriptors.
func toolDescriptions(reg *triggers.Registry) map[string]string {
	return map[string]string{
		"ls":         lsBaseDescription + reg.FormatConfiguredFiles(),
		"read_file":  readFileBaseDescription + reg.FormatReadTriggers(),
		"write_file": writeFileBaseDescription + reg.FormatWriteTriggers(),
		"edit_file":  editFileBaseDescription + reg.FormatUpdateTriggers(),
	}
}

func (s *Server) registerTools() {
	descriptions := toolDescriptions(s.triggers)

	// ls returns one of two payload shapes, so it keeps the raw handler
	// form and carries no output schema.
	s.server.AddTool(&mcp.Tool{
		Name:        "ls",
		Description: descriptions["ls"],
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
		InputSchema: mustSchemaFor[LsInput](),
	}, s.handleLs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "read_file",
		Description: descriptions["read_file"],
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: true,
		},
		InputSchema:  mustSchemaFor[ReadFileInput](),
		OutputSchema: mustSchemaFor[ReadFileOutput](),
	}, s.handleReadFile)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "write_file",
		Description:  descriptions["write_file"],
		InputSchema:  mustSchemaFor[WriteFileInput](),
		OutputSchema: mustSchemaFor[WriteFileOutput](),
	}, s.handleWriteFile)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "edit_file",
		Description:  descriptions["edit_file"],
		InputSchema:  mustSchemaFor[EditFileInput](),
		OutputSchema: mustSchemaFor[WriteFileOutput](),
	}, s.handleEditFile)
}

// RunStdio serves MCP over stdin and stdout until ctx is done.
func (s *Server) RunStdio(ctx context.Context) error {
	slog.Info("Starting MCP server with stdio transport")

	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
