package root

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/memkeep/memkeep/pkg/config"
	"github.com/memkeep/memkeep/pkg/mcp"
	"github.com/memkeep/memkeep/pkg/memory"
	"github.com/memkeep/memkeep/pkg/policy"
	"github.com/memkeep/memkeep/pkg/server"
	"github.com/memkeep/memkeep/pkg/triggers"
	"github.com/memkeep/memkeep/pkg/version"
)

type serveFlags struct {
	root       *rootFlags
	transport  string
	listenAddr string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory MCP server",
		Long:  `Start the MCP server that exposes the memory store to agents over stdio or streamable HTTP`,
		Example: `  memkeep serve
  memkeep serve --transport streamable-http --listen 127.0.0.1:8000`,
		Args: cobra.NoArgs,
		RunE: flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "", "Transport to serve on: 'stdio' or 'streamable-http' (default: from config)")
	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", "", "Address to listen on with streamable-http (default: from config)")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(f.root.configPath)
	if err != nil {
		return err
	}
	if f.transport != "" {
		cfg.Transport = f.transport
	}

	transport, err := cfg.ResolveTransport()
	if err != nil {
		return err
	}

	// The stdio transport carries the protocol on stdout, so server logs go
	// to stderr unless --debug already routed them to a file.
	if !f.root.debugMode {
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})))
	}

	st, err := memory.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	var opts []memory.Option
	if f.root.enableOtel {
		opts = append(opts, memory.WithTracer(otel.Tracer(AppName)))
	}
	svc := memory.NewService(st, policy.New(cfg.AllowedNamespaces, cfg.ReadOnlyFiles), opts...)

	reg := triggers.Load(cfg.TriggersDir, triggers.Options{AllowedFiles: cfg.AllowedFiles})

	srv := mcp.New(svc, reg, version.Version)

	if transport == config.TransportStdio {
		return srv.RunStdio(ctx)
	}

	addr := f.listenAddr
	if addr == "" {
		addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	ln, err := server.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// RunHTTP owns the listener from here: shutdown on ctx closes it.
	return srv.RunHTTP(ctx, ln)
}
