package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"

	"github.com/google/shlex"
)

// ExitError reports a command substitution that exited non-zero.
type ExitError struct {
	Code    int
	Command string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("Process exit code (%d) is non-zero: %s", e.Code, e.Command)
}

var trailingNewlines = regexp.MustCompile(`(\r?\n|\r)+$`)

// Evaluator runs command substitutions. The child gets no stdin and its
// stderr is discarded; stdout is captured and returned with trailing line
// terminators removed.
type Evaluator struct {
	// Env is the complete child environment in KEY=VALUE form.
	Env []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Shell runs the command line through sh -c instead of splitting it.
	Shell  bool
	Logger *slog.Logger
}

// Eval runs command and returns its output.
func (e *Evaluator) Eval(ctx context.Context, command string) (string, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("parsing command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}

	var cmd *exec.Cmd
	if e.Shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}
	cmd.Env = e.Env
	cmd.Dir = e.Dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if e.Logger != nil {
		e.Logger.Debug("evaluating command", "command", command, "dir", e.Dir, "shell", e.Shell)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return "", &ExitError{Code: exitErr.ExitCode(), Command: argv[0]}
		}
		return "", fmt.Errorf("running %s: %w", argv[0], err)
	}

	return trailingNewlines.ReplaceAllString(stdout.String(), ""), nil
}
