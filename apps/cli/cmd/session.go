package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/core/runner"
)

// forwardedSignals reach a running child instead of stopping envex.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

func parseTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(timeoutFlag)
	if err != nil {
		return 0, withExitCode(ExitUsageError, fmt.Errorf("invalid timeout value %q: %w (use format like 5s, 500ms)", timeoutFlag, err))
	}
	return timeout, nil
}

func loadConfig() (*config.File, error) {
	return config.Load(rcFileFlag, config.WithLogger(logger))
}

// newSession loads the config and selects the profile named by --profile.
func newSession(cmd *cobra.Command, shell bool) (*runner.Session, error) {
	if profileFlag == "" {
		return nil, withExitCode(ExitUsageError, errors.New("option '--profile|-p' is required"))
	}
	timeout, err := parseTimeout()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s := runner.NewSession(cfg, runner.Options{
		Shell:     shell,
		SocketDir: socketDirFlag,
		Timeout:   timeout,
		Signals:   forwardedSignals,
		Stdin:     cmd.InOrStdin(),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
		Logger:    logger,
	})
	if err := s.SelectProfile(profileFlag); err != nil {
		return nil, err
	}
	return s, nil
}
