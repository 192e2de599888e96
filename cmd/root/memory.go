package root

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/memkeep/memkeep/pkg/cli"
	"github.com/memkeep/memkeep/pkg/config"
	"github.com/memkeep/memkeep/pkg/memory"
	"github.com/memkeep/memkeep/pkg/memory/store"
	"github.com/memkeep/memkeep/pkg/policy"
)

func newMemoryCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage stored memories",
		Long: `Administrative access to the memory store. These commands talk to the
backend directly and see every namespace; read-only markings are shown
for information only.`,
		Example: `  memkeep memory list
  memkeep memory list preferences
  memkeep memory show preferences communication-style
  memkeep memory export memories.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newMemoryListCmd(root))
	cmd.AddCommand(newMemoryShowCmd(root))
	cmd.AddCommand(newMemorySearchCmd(root))
	cmd.AddCommand(newMemoryExportCmd(root))
	cmd.AddCommand(newMemoryForgetCmd(root))

	return cmd
}

// openService builds the administrative view of the store: every namespace
// is visible, read-only pairs are still marked.
func openService(ctx context.Context, root *rootFlags) (*memory.Service, store.Store, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := memory.NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return memory.NewService(st, policy.New(nil, cfg.ReadOnlyFiles)), st, nil
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("Failed to close store", "error", err)
	}
}

type memoryListFlags struct {
	root *rootFlags
}

func newMemoryListCmd(root *rootFlags) *cobra.Command {
	flags := memoryListFlags{root: root}

	return &cobra.Command{
		Use:   "list [namespace]",
		Short: "List namespaces, or the memories in one namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE:  flags.runMemoryListCommand,
	}
}

func (f *memoryListFlags) runMemoryListCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, st, err := openService(ctx, f.root)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if len(args) == 0 {
		namespaces, err := svc.ListNamespaces(ctx)
		if err != nil {
			return err
		}
		if len(namespaces) == 0 {
			cli.NewPrinter(cmd.OutOrStdout()).Println("No memories stored.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tRECORDS")
		for _, ns := range namespaces {
			fmt.Fprintf(w, "%s\t%d\n", ns.Name, ns.Records)
		}
		return w.Flush()
	}

	entries, err := svc.ListKeys(ctx, args[0])
	if err != nil {
		return err
	}
	return printEntries(cmd, entries)
}

func printEntries(cmd *cobra.Command, entries []memory.Entry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tKEY\tREAD-ONLY\tUPDATED")
	for _, e := range entries {
		readOnly := "-"
		if e.ReadOnly {
			readOnly = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Namespace, e.Key, readOnly, e.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

type memoryShowFlags struct {
	root *rootFlags
}

func newMemoryShowCmd(root *rootFlags) *cobra.Command {
	flags := memoryShowFlags{root: root}

	return &cobra.Command{
		Use:   "show <namespace> <key>",
		Short: "Show a memory with its content",
		Args:  cobra.ExactArgs(2),
		RunE:  flags.runMemoryShowCommand,
	}
}

func (f *memoryShowFlags) runMemoryShowCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, st, err := openService(ctx, f.root)
	if err != nil {
		return err
	}
	defer closeStore(st)

	mem, err := svc.Read(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	out := cli.NewPrinter(cmd.OutOrStdout())
	out.Printf("Namespace:  %s\n", mem.Namespace)
	out.Printf("Key:        %s\n", mem.Key)
	out.Printf("Read-only:  %t\n", mem.ReadOnly)
	out.Printf("Created:    %s\n", mem.CreatedAt.Format("2006-01-02 15:04:05"))
	out.Printf("Updated:    %s\n", mem.UpdatedAt.Format("2006-01-02 15:04:05"))
	out.Printf("\nContent:\n%s\n", mem.Content)

	return nil
}

type memorySearchFlags struct {
	root *rootFlags
}

func newMemorySearchCmd(root *rootFlags) *cobra.Command {
	flags := memorySearchFlags{root: root}

	return &cobra.Command{
		Use:   "search <namespace> <query>",
		Short: "Search a namespace for memories whose key matches",
		Args:  cobra.ExactArgs(2),
		RunE:  flags.runMemorySearchCommand,
	}
}

func (f *memorySearchFlags) runMemorySearchCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, st, err := openService(ctx, f.root)
	if err != nil {
		return err
	}
	defer closeStore(st)

	entries, err := svc.Search(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cli.NewPrinter(cmd.OutOrStdout()).Println("No matching memories found.")
		return nil
	}

	return printEntries(cmd, entries)
}

type exportRecord struct {
	Namespace  string    `json:"namespace"`
	Key        string    `json:"key"`
	Content    string    `json:"content"`
	IsReadOnly bool      `json:"is_read_only"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type exportNamespace struct {
	Name    string         `json:"name"`
	Records []exportRecord `json:"records"`
}

type exportDump struct {
	ExportedAt time.Time         `json:"exported_at"`
	Namespaces []exportNamespace `json:"namespaces"`
}

type memoryExportFlags struct {
	root *rootFlags
}

func newMemoryExportCmd(root *rootFlags) *cobra.Command {
	flags := memoryExportFlags{root: root}

	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export every memory to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runMemoryExportCommand,
	}
}

func (f *memoryExportFlags) runMemoryExportCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, st, err := openService(ctx, f.root)
	if err != nil {
		return err
	}
	defer closeStore(st)

	namespaces, err := svc.ListNamespaces(ctx)
	if err != nil {
		return err
	}

	dump := exportDump{
		ExportedAt: time.Now().UTC(),
		Namespaces: make([]exportNamespace, len(namespaces)),
	}

	// Namespaces are independent, so gather them concurrently. Each
	// goroutine writes only its own slot.
	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range namespaces {
		g.Go(func() error {
			records, err := exportNamespaceRecords(gctx, svc, ns.Name)
			if err != nil {
				return err
			}
			dump.Namespaces[i] = exportNamespace{Name: ns.Name, Records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(args[0], bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}

	total := 0
	for _, ns := range dump.Namespaces {
		total += len(ns.Records)
	}
	cli.NewPrinter(cmd.OutOrStdout()).Printf("Exported %d memories from %d namespaces to %s\n",
		total, len(dump.Namespaces), args[0])

	return nil
}

func exportNamespaceRecords(ctx context.Context, svc *memory.Service, namespace string) ([]exportRecord, error) {
	entries, err := svc.ListKeys(ctx, namespace)
	if err != nil {
		// A namespace can empty out between the listing and this call.
		if errors.Is(err, store.ErrNamespaceNotFound) {
			return nil, nil
		}
		return nil, err
	}

	records := make([]exportRecord, 0, len(entries))
	for _, entry := range entries {
		mem, err := svc.Read(ctx, entry.Namespace, entry.Key)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, exportRecord{
			Namespace:  mem.Namespace,
			Key:        mem.Key,
			Content:    mem.Content,
			IsReadOnly: mem.ReadOnly,
			CreatedAt:  mem.CreatedAt,
			UpdatedAt:  mem.UpdatedAt,
		})
	}

	return records, nil
}

type memoryForgetFlags struct {
	root  *rootFlags
	force bool
}

func newMemoryForgetCmd(root *rootFlags) *cobra.Command {
	flags := memoryForgetFlags{root: root}

	cmd := &cobra.Command{
		Use:   "forget <namespace> <key>",
		Short: "Delete a memory from the store",
		Long:  "Delete one memory permanently. The MCP tools never delete; this is the only removal path.",
		Args:  cobra.ExactArgs(2),
		RunE:  flags.runMemoryForgetCommand,
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func (f *memoryForgetFlags) runMemoryForgetCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	namespace, key := args[0], args[1]

	if err := memory.ValidateIdentifier("namespace", namespace); err != nil {
		return err
	}
	if err := memory.ValidateIdentifier("key", key); err != nil {
		return err
	}

	cfg, err := config.Load(f.root.configPath)
	if err != nil {
		return err
	}
	st, err := memory.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	out := cli.NewPrinter(cmd.OutOrStdout())

	if !f.force {
		prompt := fmt.Sprintf("Forget memory '%s/%s'? This cannot be undone.", namespace, key)
		if !out.Confirm(ctx, cmd.InOrStdin(), prompt) {
			out.Println("Aborted.")
			return nil
		}
	}

	if err := st.Delete(ctx, namespace, key); err != nil {
		return err
	}

	out.Printf("Memory '%s/%s' deleted.\n", namespace, key)
	return nil
}
