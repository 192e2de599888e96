// Package triggers loads declarative descriptors that tell an agent when to
// read, create, or update each configured memory. The descriptor text is
// appended to tool descriptions as guidance; it never affects policy or
// storage.
package triggers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/memkeep/memkeep/pkg/memory"
)

// File is one configured memory: its identity plus the guidance strings.
type File struct {
	Category      string
	Name          string
	Description   string
	ReadTrigger   string
	WriteTrigger  string
	UpdateTrigger string
}

// Path returns the "category/name" form used in trigger lines.
func (f File) Path() string {
	return f.Category + "/" + f.Name
}

// descriptor mirrors the JSON layout of one trigger file.
type descriptor struct {
	Files []struct {
		FileName        string `json:"file_name"`
		FileDescription string `json:"file_description"`
		ReadTrigger     string `json:"read_trigger"`
		WriteTrigger    string `json:"write_trigger"`
		UpdateTrigger   string `json:"update_trigger"`
	} `json:"files"`
}

// Registry holds the loaded trigger files. It is immutable after Load and
// safe for concurrent use.
type Registry struct {
	files      []File
	byCategory map[string][]File
}

// Options control loading.
type Options struct {
	// AllowedFiles keeps only entries whose file name is listed. Empty
	// means every file is kept.
	AllowedFiles []string
}

// Load reads every trigger descriptor from dir. One JSON file per category;
// the file stem is the category name. Loading never fails the server:
// a missing directory yields an empty registry and every malformed
// descriptor is skipped with an error log.
func Load(dir string, opts Options) *Registry {
	reg := &Registry{byCategory: make(map[string][]File)}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		slog.Warn("Triggers directory not found, running without trigger descriptors", "dir", dir)
		return reg
	case err != nil:
		slog.Error("Cannot read triggers directory", "dir", dir, "error", err)
		return reg
	case !info.IsDir():
		slog.Error("Triggers path is not a directory", "dir", dir)
		return reg
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("Cannot read triggers directory", "dir", dir, "error", err)
		return reg
	}

	var all []File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		if strings.HasSuffix(stem, ".example") {
			continue
		}

		files, err := loadFile(filepath.Join(dir, name), stem)
		if err != nil {
			slog.Error("Skipping trigger descriptor", "file", name, "error", err)
			continue
		}
		all = append(all, files...)
	}

	if len(opts.AllowedFiles) > 0 {
		allowed := make(map[string]struct{}, len(opts.AllowedFiles))
		for _, name := range opts.AllowedFiles {
			allowed[name] = struct{}{}
		}

		kept := make([]File, 0, len(all))
		for _, f := range all {
			if _, ok := allowed[f.Name]; ok {
				kept = append(kept, f)
			}
		}
		if dropped := len(all) - len(kept); dropped > 0 {
			slog.Info("Filtered trigger descriptors not in allowed files", "dropped", dropped)
		}
		all = kept
	}

	reg.files = all
	for _, f := range all {
		reg.byCategory[f.Category] = append(reg.byCategory[f.Category], f)
	}

	slog.Info("Loaded trigger descriptors", "dir", dir, "files", len(reg.files))
	return reg
}

// loadFile parses one descriptor. Trigger files may carry comments and
// trailing commas; hujson.Standardize strips them before decoding. Any
// invalid entry rejects the whole file, matching how a descriptor is
// either trusted or ignored.
func loadFile(path, category string) ([]File, error) {
	if err := memory.ValidateIdentifier("category", category); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var desc descriptor
	if err := json.Unmarshal(std, &desc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	files := make([]File, 0, len(desc.Files))
	for _, f := range desc.Files {
		if err := memory.ValidateIdentifier("file_name", f.FileName); err != nil {
			return nil, err
		}
		files = append(files, File{
			Category:      category,
			Name:          f.FileName,
			Description:   f.FileDescription,
			ReadTrigger:   f.ReadTrigger,
			WriteTrigger:  f.WriteTrigger,
			UpdateTrigger: f.UpdateTrigger,
		})
	}

	return files, nil
}

// HasConfigurations reports whether any trigger descriptors are loaded.
func (r *Registry) HasConfigurations() bool {
	return len(r.files) > 0
}

// Files returns every loaded entry, grouped by descriptor file and in
// file order within each.
func (r *Registry) Files() []File {
	return slices.Clone(r.files)
}

// FormatConfiguredFiles renders the configured-files block appended to the
// ls tool description. Empty registries render nothing.
func (r *Registry) FormatConfiguredFiles() string {
	if !r.HasConfigurations() {
		return ""
	}

	lines := []string{"\n\nConfigured Files:"}

	categories := make([]string, 0, len(r.byCategory))
	for category := range r.byCategory {
		categories = append(categories, category)
	}
	slices.Sort(categories)

	for _, category := range categories {
		lines = append(lines, "\n"+category+":")
		for _, f := range r.byCategory[category] {
			lines = append(lines, fmt.Sprintf("  - %s: %s", f.Name, f.Description))
		}
	}

	return strings.Join(lines, "\n")
}

// FormatReadTriggers renders the block appended to the read_file tool
// description.
func (r *Registry) FormatReadTriggers() string {
	return r.formatTriggers("When to read:", func(f File) string { return f.ReadTrigger })
}

// FormatWriteTriggers renders the block appended to the write_file tool
// description.
func (r *Registry) FormatWriteTriggers() string {
	return r.formatTriggers("When to create:", func(f File) string { return f.WriteTrigger })
}

// FormatUpdateTriggers renders the block appended to the edit_file tool
// description.
func (r *Registry) FormatUpdateTriggers() string {
	return r.formatTriggers("When to update:", func(f File) string { return f.UpdateTrigger })
}

func (r *Registry) formatTriggers(header string, trigger func(File) string) string {
	if !r.HasConfigurations() {
		return ""
	}

	lines := []string{"\n\n" + header}
	for _, f := range r.files {
		lines = append(lines, fmt.Sprintf("  - %s: %s", f.Path(), trigger(f)))
	}

	return strings.Join(lines, "\n")
}
