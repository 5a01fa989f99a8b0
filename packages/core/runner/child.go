package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/tap"
)

// KillDelay is how long a child gets to exit after SIGTERM before it is
// killed.
const KillDelay = 5 * time.Second

// Run starts the child described by argv with the resolved env and waits
// for it. stdout and stderr are passed through unchanged and copied into
// the tap that expose rules watch. It returns the child's exit code; a
// child killed by a signal reports 128 plus the signal number.
//
// When the profile exposes values, the exposers are started before the
// child, so an address already served by another run fails here and the
// child never starts. Exposers are closed before Run returns, on every path.
func (s *Session) Run(ctx context.Context, argv []string) (code int, err error) {
	if len(argv) == 0 {
		return 0, s.RunExpose(ctx)
	}
	defer func() {
		err = s.closeExposer(err)
	}()

	ec, err := s.exposeContext()
	if err != nil {
		return 1, err
	}
	if ec != nil {
		if err := startExposer(ctx, s.exposer); err != nil {
			return 1, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := s.command(ctx, argv)

	var t *tap.Tap
	if ec != nil {
		t = tap.New()
		if err := ec.Apply(ctx, s.env, t, s.exposer.Expose); err != nil {
			t.Close()
			ec.Wait()
			return 1, err
		}
		cmd.Stdout = io.MultiWriter(s.opts.Stdout, t)
		cmd.Stderr = io.MultiWriter(s.opts.Stderr, t)
	}

	s.logger.Debug("starting child", "argv", argv, "dir", cmd.Dir, "shell", s.opts.Shell)
	if err := cmd.Start(); err != nil {
		if t != nil {
			t.Close()
			ec.Wait()
		}
		return 127, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	stopSignals := s.forwardSignals(cmd.Process)
	waitErr := cmd.Wait()
	stopSignals()

	if t != nil {
		t.Close()
		ec.Wait()
	}

	return exitCode(waitErr)
}

func (s *Session) command(ctx context.Context, argv []string) *exec.Cmd {
	var cmd *exec.Cmd
	if s.opts.Shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", strings.Join(argv, " "))
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}
	cmd.Env = env.FormatEnviron(s.env)
	cmd.Dir = s.Cwd()
	cmd.Stdin = s.opts.Stdin
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = KillDelay
	return cmd
}

// forwardSignals relays the configured signals to p until the returned
// function is called.
func (s *Session) forwardSignals(p *os.Process) func() {
	if len(s.opts.Signals) == 0 {
		return func() {}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.opts.Signals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				s.logger.Debug("forwarding signal", "signal", sig)
				_ = p.Signal(sig)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	return 1, err
}
