package root

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/memkeep/memkeep/pkg/cli"
	"github.com/memkeep/memkeep/pkg/config"
)

// exampleTriggers ships with "memkeep config init". The ".example" stem
// keeps the loader from picking it up until it is renamed.
const exampleTriggers = `{
  // One descriptor file per category; the file stem is the category name.
  // Rename this file to coding.json (or any <category>.json) to activate it.
  "files": [
    {
      "file_name": "python",
      "file_description": "Python style preferences",
      "read_trigger": "Before writing Python code",
      "write_trigger": "When the user states a Python preference",
      "update_trigger": "When a stated Python preference changes",
    },
  ],
}
`

func newConfigCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration",
		Long:  "View and manage the memkeep configuration stored in ~/.config/memkeep/memkeep.yaml",
		Example: `  # Create a starter config file
  memkeep config init

  # Show the effective configuration
  memkeep config show

  # Show the path to the config file
  memkeep config path`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShowCommand(cmd, root)
		},
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd(root))

	return cmd
}

func newConfigInitCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a starter config file",
		Long:  "Write a config file with every setting at its default, plus an example trigger descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInitCommand(cmd, root)
		},
	}
}

func newConfigShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Display the configuration after defaults, the config file, and environment variables are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShowCommand(cmd, root)
		},
	}
}

func newConfigPathCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the path to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cli.NewPrinter(cmd.OutOrStdout())
			out.Println(configPath(root))
			return nil
		},
	}
}

func configPath(root *rootFlags) string {
	if root.configPath != "" {
		return root.configPath
	}
	return config.Path()
}

func runConfigInitCommand(cmd *cobra.Command, root *rootFlags) error {
	out := cli.NewPrinter(cmd.OutOrStdout())
	path := configPath(root)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		return err
	}
	out.Println("Created config file:", path)

	if err := os.MkdirAll(cfg.TriggersDir, 0o755); err != nil {
		return fmt.Errorf("creating triggers directory: %w", err)
	}
	example := filepath.Join(cfg.TriggersDir, "coding.example.json")
	if err := atomic.WriteFile(example, bytes.NewReader([]byte(exampleTriggers))); err != nil {
		return fmt.Errorf("writing example trigger descriptor: %w", err)
	}
	out.Println("Created example trigger descriptor:", example)

	return nil
}

func runConfigShowCommand(cmd *cobra.Command, root *rootFlags) error {
	out := cli.NewPrinter(cmd.OutOrStdout())

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.MarshalWithOptions(cfg, yaml.IndentSequence(true), yaml.UseSingleQuote(false))
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}

	out.Print(string(data))
	return nil
}
