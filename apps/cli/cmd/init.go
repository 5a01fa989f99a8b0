package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a starter .envexrc.yaml",
	Long: `Create a starter .envexrc.yaml in the given directory (default: the
current directory) with a few example profiles.

Examples:
  envex init
  envex init ./services/api --force`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
}

func initCommand(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	if !forceInit {
		if existing, err := config.FindConfigFile(dir); err == nil {
			return withExitCode(ExitConfigError, fmt.Errorf("file already exists: %s (use --force to overwrite)", existing))
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	configFile := filepath.Join(dir, config.StarterFile)
	if err := os.WriteFile(configFile, []byte(config.StarterConfig()), 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nenvex project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'envex -p dev -- env' to see the resolved environment.\n")
	return nil
}
