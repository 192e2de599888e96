package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memkeep/memkeep/pkg/memory"
	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/policy"
)

// LsInput selects what ls returns: no path lists namespaces, a namespace
// name lists the memories inside it.
type LsInput struct {
	Path string `json:"path,omitempty" jsonschema:"Optional namespace to explore. Omit or pass an empty string to list all namespaces; pass a namespace name to list the memories inside it"`
}

// NamespacesOutput is the ls payload for an empty path.
type NamespacesOutput struct {
	Type       string          `json:"type"`
	Count      int             `json:"count"`
	Namespaces []NamespaceInfo `json:"namespaces"`
}

type NamespaceInfo struct {
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
}

// MemoriesOutput is the ls payload for a namespace path.
type MemoriesOutput struct {
	Type      string       `json:"type"`
	Namespace string       `json:"namespace"`
	Count     int          `json:"count"`
	Memories  []MemoryInfo `json:"memories"`
}

type MemoryInfo struct {
	Key        string `json:"key"`
	Namespace  string `json:"namespace"`
	IsReadOnly bool   `json:"is_read_only"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ReadFileInput struct {
	Namespace string `json:"namespace" jsonschema:"The memory category/namespace (e.g. 'programming-style', 'preferences')"`
	Key       string `json:"key" jsonschema:"The specific memory identifier within the namespace"`
}

type ReadFileOutput struct {
	Namespace  string `json:"namespace"`
	Key        string `json:"key"`
	Content    string `json:"content"`
	IsReadOnly bool   `json:"is_read_only"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type WriteFileInput struct {
	Namespace string `json:"namespace" jsonschema:"The memory category/namespace (e.g. 'programming-style', 'preferences')"`
	Key       string `json:"key" jsonschema:"The memory identifier (use descriptive names like 'python-type-hints')"`
	Content   string `json:"content" jsonschema:"The content to store (can be any text, instructions, preferences, etc.)"`
}

type EditFileInput struct {
	Namespace string `json:"namespace" jsonschema:"The memory category/namespace"`
	Key       string `json:"key" jsonschema:"The memory identifier (must exist)"`
	Content   string `json:"content" jsonschema:"The new content to replace the existing content"`
}

// WriteFileOutput is shared by write_file and edit_file.
type WriteFileOutput struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Server) handleLs(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := lsArguments(req)
	if err != nil {
		return errorResult("ls", err), nil
	}

	out, err := s.ls(ctx, in)
	if err != nil {
		return errorResult("ls", err), nil
	}
	return jsonResult(out)
}

// lsArguments decodes the raw tool arguments. Omitted arguments mean
// "list namespaces".
func lsArguments(req *mcp.CallToolRequest) (LsInput, error) {
	var in LsInput
	if len(req.Params.Arguments) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
		return LsInput{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return in, nil
}

// ls answers both listing shapes. The output is a union, so the handler
// stays on the raw tool API and marshals the payload itself.
func (s *Server) ls(ctx context.Context, in LsInput) (any, error) {
	if in.Path == "" {
		namespaces, err := s.memories.ListNamespaces(ctx)
		if err != nil {
			return nil, err
		}

		out := NamespacesOutput{
			Type:       "namespaces",
			Count:      len(namespaces),
			Namespaces: make([]NamespaceInfo, 0, len(namespaces)),
		}
		for _, ns := range namespaces {
			out.Namespaces = append(out.Namespaces, NamespaceInfo{
				Name:      ns.Name,
				FileCount: ns.Records,
			})
		}

		slog.Info("Listed namespaces", "count", out.Count)
		return out, nil
	}

	entries, err := s.memories.ListKeys(ctx, in.Path)
	if err != nil {
		return nil, err
	}

	out := MemoriesOutput{
		Type:      "memories",
		Namespace: in.Path,
		Count:     len(entries),
		Memories:  make([]MemoryInfo, 0, len(entries)),
	}
	for _, entry := range entries {
		out.Memories = append(out.Memories, memoryInfo(entry))
	}

	slog.Info("Listed memories", "namespace", in.Path, "count", out.Count)
	return out, nil
}

func (s *Server) handleReadFile(ctx context.Context, _ *mcp.CallToolRequest, in ReadFileInput) (*mcp.CallToolResult, ReadFileOutput, error) {
	mem, err := s.memories.Read(ctx, in.Namespace, in.Key)
	if err != nil {
		return nil, ReadFileOutput{}, toolError("read_file", err)
	}

	slog.Info("Read memory", "namespace", mem.Namespace, "key", mem.Key)
	return nil, ReadFileOutput{
		Namespace:  mem.Namespace,
		Key:        mem.Key,
		Content:    mem.Content,
		IsReadOnly: mem.ReadOnly,
		CreatedAt:  wireTime(mem.CreatedAt),
		UpdatedAt:  wireTime(mem.UpdatedAt),
	}, nil
}

func (s *Server) handleWriteFile(ctx context.Context, _ *mcp.CallToolRequest, in WriteFileInput) (*mcp.CallToolResult, WriteFileOutput, error) {
	mem, created, err := s.memories.Write(ctx, in.Namespace, in.Key, in.Content)
	if err != nil {
		return nil, WriteFileOutput{}, toolError("write_file", err)
	}

	message := "Memory updated successfully"
	if created {
		message = "Memory created successfully"
	}

	slog.Info("Wrote memory", "namespace", mem.Namespace, "key", mem.Key, "created", created)
	return nil, writeFileOutput(mem, message), nil
}

func (s *Server) handleEditFile(ctx context.Context, _ *mcp.CallToolRequest, in EditFileInput) (*mcp.CallToolResult, WriteFileOutput, error) {
	mem, err := s.memories.Edit(ctx, in.Namespace, in.Key, in.Content)
	if err != nil {
		return nil, WriteFileOutput{}, toolError("edit_file", err)
	}

	slog.Info("Edited memory", "namespace", mem.Namespace, "key", mem.Key)
	return nil, writeFileOutput(mem, "Memory updated successfully"), nil
}

func memoryInfo(entry memory.Entry) MemoryInfo {
	return MemoryInfo{
		Key:        entry.Key,
		Namespace:  entry.Namespace,
		IsReadOnly: entry.ReadOnly,
		CreatedAt:  wireTime(entry.CreatedAt),
		UpdatedAt:  wireTime(entry.UpdatedAt),
	}
}

func writeFileOutput(mem *memory.Memory, message string) WriteFileOutput {
	return WriteFileOutput{
		Success:   true,
		Message:   message,
		Namespace: mem.Namespace,
		Key:       mem.Key,
		CreatedAt: wireTime(mem.CreatedAt),
		UpdatedAt: wireTime(mem.UpdatedAt),
	}
}

// errorType maps an error onto the wire kind agents see ahead of the
// message text.
func errorType(err error) string {
	switch {
	case errors.Is(err, memory.ErrInvalidIdentifier):
		return "validation_error"
	case errors.Is(err, policy.ErrAccessDenied):
		return "permission_denied"
	case errors.Is(err, store.ErrRecordNotFound), errors.Is(err, store.ErrNamespaceNotFound):
		return "not_found"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrWriteConflict):
		return "conflict"
	default:
		return "error"
	}
}

// toolError logs a failed call and shapes the error for the tool result.
// The SDK renders returned errors as IsError results, so agents see
// "<type>: <message>".
func toolError(tool string, err error) error {
	switch kind := errorType(err); kind {
	case "error", "unavailable", "conflict":
		slog.Error("Tool call failed", "tool", tool, "error", err)
	default:
		slog.Warn("Tool call rejected", "tool", tool, "kind", kind, "error", err)
	}
	return fmt.Errorf("%s: %w", errorType(err), err)
}

func errorResult(tool string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: toolError(tool, err).Error()}},
	}
}

// jsonResult mirrors what the SDK builds for typed handlers: the payload as
// JSON text plus structured content.
func jsonResult(out any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: out,
	}, nil
}

// wireTime renders timestamps the way the store's clients expect them.
func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
