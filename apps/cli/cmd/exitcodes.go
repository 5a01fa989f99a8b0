package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/core/parser"
	"github.com/abdul-hamid-achik/envex/packages/core/runner"
	"github.com/abdul-hamid-achik/envex/packages/exchange"
)

// Exit codes for envex CLI. The run command exits with the child's own code
// when the child ran.
const (
	// ExitSuccess indicates the command succeeded
	ExitSuccess = 0

	// ExitFailure indicates a generic failure
	ExitFailure = 1

	// ExitResolveError indicates the env could not be resolved
	ExitResolveError = 2

	// ExitConfigError indicates a missing or invalid config or profile
	ExitConfigError = 3

	// ExitExchangeError indicates an exchange server could not be reached
	// or did not expose the requested var
	ExitExchangeError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries an explicit exit code. A nil err means the failure
// has already been reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return withExitCode(ExitUsageError, err)
		}
		return nil
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	var resolveErr *env.ResolveError
	var substErr *runner.ExitError
	switch {
	case errors.As(err, &resolveErr), errors.As(err, &substErr), errors.Is(err, parser.ErrEmptyName):
		return ExitResolveError
	case errors.Is(err, config.ErrNotFound),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, config.ErrUnknownProfile),
		errors.Is(err, config.ErrCircularProfile):
		return ExitConfigError
	case errors.Is(err, runner.ErrVarNotFound),
		errors.Is(err, exchange.ErrConnectTimeout),
		errors.Is(err, exchange.ErrServerStartTimeout),
		errors.Is(err, exchange.ErrAddressInUse),
		errors.Is(err, exchange.ErrUnknownRequest),
		errors.Is(err, exchange.ErrClosed):
		return ExitExchangeError
	}
	return ExitFailure
}
