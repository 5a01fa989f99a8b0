package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/exchange"
	"github.com/abdul-hamid-achik/envex/packages/expose"
	"github.com/abdul-hamid-achik/envex/packages/tap"
)

// ErrVarNotFound is returned when the server has no value for a key.
var ErrVarNotFound = errors.New("Exposed var not found")

// Options configures a Session.
type Options struct {
	// Shell runs the child and command substitutions through sh -c.
	Shell bool
	// SocketDir holds exchange sockets. Empty means exchange.DefaultDir.
	SocketDir string
	// Timeout bounds exchange server startup and client connection.
	Timeout time.Duration
	// Signals are forwarded to a running child.
	Signals []os.Signal

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func (o Options) exchange() exchange.Options {
	return exchange.Options{Dir: o.SocketDir, Timeout: o.Timeout, Logger: o.Logger}
}

// Session ties a loaded config and a selected profile to the env it
// resolves and the child it runs.
type Session struct {
	config  *config.File
	name    string
	profile *config.Profile
	opts    Options
	logger  *slog.Logger

	env     map[string]string
	exposer Exposer

	// resolving lists the profiles whose env is being resolved around
	// this session's command substitutions, outermost first.
	resolving []string
}

// NewSession creates a session over cfg. cfg may be nil, in which case the
// session runs children in the parent environment unchanged.
func NewSession(cfg *config.File, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Session{config: cfg, opts: opts, logger: opts.Logger}
}

// SelectProfile resolves the named profile.
func (s *Session) SelectProfile(name string) error {
	if s.config == nil {
		return errors.New("Requires configuration to be loaded")
	}
	p, err := s.config.Profile(name)
	if err != nil {
		return err
	}
	s.name = name
	s.profile = p
	s.logger.Debug("profile selected", "profile", name, "cwd", p.Cwd)
	return nil
}

// ProfileName returns the selected profile, or "" when none is selected.
func (s *Session) ProfileName() string {
	return s.name
}

// Cwd is the selected profile's working directory, or "".
func (s *Session) Cwd() string {
	if s.profile == nil {
		return ""
	}
	return s.profile.Cwd
}

// Address derives the exchange address of the selected profile.
func (s *Session) Address() (string, error) {
	if s.config == nil {
		return "", errors.New("Requires configuration to be loaded")
	}
	if s.profile == nil {
		return "", errors.New("Requires profile to be selected")
	}
	return exchange.Address(s.config.Path, s.name), nil
}

// ResolveEnv resolves the profile's env on top of parent. Without a
// profile the env is parent itself.
func (s *Session) ResolveEnv(ctx context.Context, parent map[string]string) error {
	if parent == nil {
		parent = env.Environ()
	}
	if s.profile == nil || len(s.profile.Env) == 0 {
		s.env = maps.Clone(parent)
		return nil
	}

	c := env.NewContext(parent, env.WithLogger(s.logger))
	c.Extend(s.profile.Env)

	runner := func(ctx context.Context, command, profile string) (string, error) {
		return s.substitute(ctx, command, profile, parent)
	}
	resolved, err := c.Resolve(ctx, runner)
	if err != nil {
		return err
	}
	s.env = env.Merge(parent, resolved)
	return nil
}

// Env returns the resolved environment.
func (s *Session) Env() map[string]string {
	return maps.Clone(s.env)
}

// substitute evaluates a $(...) command in a fresh session sharing the
// config. The command's own profile, when given, is resolved against the
// same parent environment. Naming a profile that is already being resolved
// further out fails with ErrCircularProfile.
func (s *Session) substitute(ctx context.Context, command, profile string, parent map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chain := slices.Clone(s.resolving)
	if s.name != "" {
		chain = append(chain, s.name)
	}

	sub := NewSession(s.config, s.opts)
	sub.resolving = chain
	if profile != "" {
		if slices.Contains(chain, profile) {
			return "", &config.ProfileError{Kind: config.ErrCircularProfile, Name: profile}
		}
		if err := sub.SelectProfile(profile); err != nil {
			return "", err
		}
	}
	if err := sub.ResolveEnv(ctx, parent); err != nil {
		return "", err
	}
	return sub.Eval(ctx, command)
}

// Eval runs command with the session's env and working directory.
func (s *Session) Eval(ctx context.Context, command string) (string, error) {
	e := &Evaluator{
		Env:    env.FormatEnviron(s.env),
		Dir:    s.Cwd(),
		Shell:  s.opts.Shell,
		Logger: s.logger,
	}
	return e.Eval(ctx, command)
}

// AttachServer publishes exposed values over the exchange protocol.
func (s *Session) AttachServer() error {
	addr, err := s.Address()
	if err != nil {
		return err
	}
	s.exposer = combine(s.exposer, NewServerExposer(addr, s.opts.exchange()))
	return nil
}

// AttachFile writes exposed values to path when the session ends.
func (s *Session) AttachFile(path string, overwrite bool) error {
	fe, err := NewFileExposer(path, overwrite)
	if err != nil {
		return err
	}
	s.exposer = combine(s.exposer, fe)
	return nil
}

// exposeContext builds the expose rules for the selected profile, or nil
// when nothing is exposed or the profile has no expose rules.
func (s *Session) exposeContext() (*expose.Context, error) {
	if s.profile == nil || s.exposer == nil {
		return nil, nil
	}
	ec := expose.NewContext(expose.WithLogger(s.logger))
	if err := ec.Extend(s.profile.Expose); err != nil {
		return nil, err
	}
	if ec.Len() == 0 {
		return nil, nil
	}
	return ec, nil
}

// RunExpose applies the expose rules without a child process. Regex rules
// see an ended tap, so only static values are exposed.
func (s *Session) RunExpose(ctx context.Context) error {
	ec, err := s.exposeContext()
	if err != nil {
		return s.closeExposer(err)
	}
	if ec == nil {
		return s.closeExposer(nil)
	}
	err = ec.Apply(ctx, s.env, tap.Ended(), s.exposer.Expose)
	ec.Wait()
	return s.closeExposer(err)
}

func (s *Session) closeExposer(err error) error {
	if s.exposer == nil {
		return err
	}
	closeErr := s.exposer.Close()
	s.exposer = nil
	if err != nil {
		return err
	}
	return closeErr
}

// GetRemoteVar reads key from the server exposing the selected profile.
// With wait set, it waits up to the configured timeout for the server to
// start and for the key to be exposed.
func (s *Session) GetRemoteVar(ctx context.Context, key string, wait bool) (string, error) {
	addr, err := s.Address()
	if err != nil {
		return "", err
	}
	opts := s.opts.exchange()

	if wait {
		return waitForVar(ctx, addr, key, opts)
	}

	client, err := exchange.Dial(ctx, addr, opts)
	if err != nil {
		return "", err
	}
	defer client.Close()

	val, ok, err := client.GetVar(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVarNotFound, key)
	}
	return val, nil
}
