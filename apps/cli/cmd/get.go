package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var waitFlag bool

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a var exposed by another envex process",
	Long: `Print the value a running "envex run" of the same config and profile
exposes under key.

With --wait, envex waits up to --timeout for that process to start and for
the key to be exposed.

Examples:
  envex -p dev get PORT
  envex -p dev get URL --wait --timeout 30s`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
	RunE: getCommand,
}

func init() {
	getCmd.Flags().BoolVar(&waitFlag, "wait", getEnvBool("ENVEX_WAIT", false), "Wait for the server and the key to appear (env: ENVEX_WAIT)")
}

func getCommand(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, false)
	if err != nil {
		return err
	}

	val, err := s.GetRemoteVar(cmd.Context(), args[0], waitFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}
