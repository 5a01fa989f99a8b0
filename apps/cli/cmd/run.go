package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/env"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [--] [command [args...]]",
	Short: "Run a command in the profile's environment (default command)",
	Long: `Resolve the selected profile's env and run a command with it.

The command's output passes through unchanged. Expose rules publish values
to other envex processes ("envex get") while the command runs, and to the
--out file when it ends. Without a command only the static expose values
are published, which is useful together with --out.

Examples:
  envex run -p dev -- npm start
  envex -p dev --shell 'echo $PORT && npm start'
  envex -p dev --out .env.local --overwrite`,
	Args: cobra.ArbitraryArgs,
	RunE: runCommand,
}

var (
	shellFlag     bool
	outFlag       string
	overwriteFlag bool
)

func init() {
	addRunFlags(rootCmd)
	addRunFlags(runCmd)
}

// addRunFlags registers the run flags on c. They are shared by the root
// command, so they may come before or after "run". Flag parsing stops at the
// first argument so the child's own flags are left alone.
func addRunFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&shellFlag, "shell", "s", getEnvBool("ENVEX_SHELL", false), "Run the command through sh -c (env: ENVEX_SHELL)")
	c.Flags().StringVar(&outFlag, "out", "", "Write exposed vars to this file when the run ends")
	c.Flags().BoolVarP(&overwriteFlag, "overwrite", "w", false, "Overwrite the --out file if it already exists")
	c.Flags().SetInterspersed(false)
}

func runCommand(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, shellFlag)
	if err != nil {
		return err
	}

	parent := env.Environ()
	parent["FORCE_COLOR"] = "1"

	ctx := cmd.Context()
	resolveCtx, stop := signal.NotifyContext(ctx, forwardedSignals...)
	err = s.ResolveEnv(resolveCtx, parent)
	stop()
	if err != nil {
		return err
	}

	if outFlag != "" {
		if err := s.AttachFile(outFlag, overwriteFlag); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		if err := s.AttachServer(); err != nil {
			return err
		}
	}

	logger.Info("running", "profile", s.ProfileName(), "args", args)
	code, err := s.Run(ctx, args)
	switch {
	case err != nil && code > ExitFailure:
		return withExitCode(code, err)
	case err != nil:
		return err
	case code != ExitSuccess:
		return withExitCode(code, nil)
	}
	return nil
}
