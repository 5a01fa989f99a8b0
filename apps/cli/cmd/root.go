package cmd

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/output"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	rcFileFlag    string
	profileFlag   string
	verboseFlag   int // 0=warn, 1=-v info, 2=-vv debug
	noColorFlag   bool
	socketDirFlag string
	timeoutFlag   string

	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "envex [flags] [--] [command [args...]]",
	Short: "Run commands in a profile-defined environment.",
	Long: `envex resolves environment variables from a profile in .envexrc and runs a
command with them. Values the command prints can be exposed to other envex
processes, which read them with "envex get".

Without a subcommand envex behaves like "envex run".`,
	Example: `  envex -p dev -- npm start
  envex -p dev --out .env.local
  envex -p dev get URL --wait`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runCommand,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(execute(os.Stderr))
}

// execute runs the root command and reports any error to w. It returns the
// process exit code.
func execute(w io.Writer) int {
	err := rootCmd.Execute()
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		output.NewConsoleFormatter(output.WithWriter(w), output.WithNoColor(noColorFlag)).FormatError(err)
	}
	return exitCodeFor(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rcFileFlag, "rc-file", "f", getEnvString("ENVEX_RC_FILE", config.DefaultConfigFile), "Path to the config file or its directory (env: ENVEX_RC_FILE)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", getEnvString("ENVEX_PROFILE", config.DefaultProfile()), "Profile to use, npm:<script> when run by npm (env: ENVEX_PROFILE)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Verbose logging (-v, -vv for more detail)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("ENVEX_NO_COLOR", false), "Disable colored output (env: ENVEX_NO_COLOR)")
	rootCmd.PersistentFlags().StringVar(&socketDirFlag, "socket-dir", getEnvString("ENVEX_SOCKET_DIR", ""), "Directory for exchange sockets, default /tmp (env: ENVEX_SOCKET_DIR)")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", getEnvString("ENVEX_TIMEOUT", "5s"), "Exchange start and connect timeout (env: ENVEX_TIMEOUT)")

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return withExitCode(ExitUsageError, err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if noColorFlag {
		color.NoColor = true
	}
	logger = newLogger(cmd.ErrOrStderr(), verboseFlag)
	return nil
}

// newLogger builds the CLI logger. ENVEX_LOG_LEVEL (debug, info, warn,
// error) takes precedence over the verbosity count.
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	if v := os.Getenv("ENVEX_LOG_LEVEL"); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			level = l
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
