package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/core/parser"
	"github.com/abdul-hamid-achik/envex/packages/core/runner"
	"github.com/abdul-hamid-achik/envex/packages/exchange"
	"github.com/abdul-hamid-achik/envex/packages/output"
)

const cliConfig = `
profiles:
  base:
    env:
      GREETING: hi
  dev:
    profile: base
    env:
      NAME: envex
    expose:
      - NAME
      - STATIC: fixed
  loop:
    profile: loop
`

func resetFlags() {
	rcFileFlag = config.DefaultConfigFile
	profileFlag = ""
	verboseFlag = 0
	noColorFlag = true
	socketDirFlag = ""
	timeoutFlag = "5s"
	shellFlag = false
	outFlag = ""
	overwriteFlag = false
	waitFlag = false
	listOutputFlag = "console"
	validateOutputFlag = "console"
	forceInit = false
}

// runCLI executes the root command with args and returns the exit code,
// stdout and the reported errors.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	code := execute(&stderr)
	return code, stdout.String(), stderr.String()
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".envexrc.yaml"), []byte(content), 0o644))
	return dir
}

func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "envex")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: ExitSuccess},
		{name: "generic", err: errors.New("boom"), expected: ExitFailure},
		{name: "explicit", err: withExitCode(42, nil), expected: 42},
		{name: "resolve", err: &env.ResolveError{Kind: env.ErrUndefined, Name: "X"}, expected: ExitResolveError},
		{name: "substitution", err: fmt.Errorf("wrapped: %w", &runner.ExitError{Code: 1, Command: "false"}), expected: ExitResolveError},
		{name: "empty name", err: parser.ErrEmptyName, expected: ExitResolveError},
		{name: "config not found", err: config.ErrNotFound, expected: ExitConfigError},
		{name: "unknown profile", err: &config.ProfileError{Kind: config.ErrUnknownProfile, Name: "x"}, expected: ExitConfigError},
		{name: "connect timeout", err: exchange.ErrConnectTimeout, expected: ExitExchangeError},
		{name: "var not found", err: fmt.Errorf("%w: X", runner.ErrVarNotFound), expected: ExitExchangeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCodeFor(tt.err))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("ENVEX_LOG_LEVEL", "")

	tests := []struct {
		verbosity int
		enabled   slog.Level
		disabled  slog.Level
	}{
		{verbosity: 0, enabled: slog.LevelWarn, disabled: slog.LevelInfo},
		{verbosity: 1, enabled: slog.LevelInfo, disabled: slog.LevelDebug},
		{verbosity: 2, enabled: slog.LevelDebug, disabled: slog.LevelDebug - 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("v%d", tt.verbosity), func(t *testing.T) {
			l := newLogger(&bytes.Buffer{}, tt.verbosity)
			assert.True(t, l.Enabled(context.Background(), tt.enabled))
			assert.False(t, l.Enabled(context.Background(), tt.disabled))
		})
	}

	t.Setenv("ENVEX_LOG_LEVEL", "error")
	l := newLogger(&bytes.Buffer{}, 2)
	assert.False(t, l.Enabled(context.Background(), slog.LevelWarn))
}

func TestCLI_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "envex version dev")
}

func TestCLI_RunPropagatesChildExitCode(t *testing.T) {
	dir := writeConfig(t, cliConfig)

	code, stdout, stderr := runCLI(t, "-f", dir, "-p", "dev", "--socket-dir", socketDir(t),
		"--", "sh", "-c", "echo $GREETING $NAME $FORCE_COLOR; exit 3")
	assert.Equal(t, 3, code)
	assert.Equal(t, "hi envex 1\n", stdout)
	assert.Empty(t, stderr)
}

func TestCLI_RunWithoutChildWritesOut(t *testing.T) {
	dir := writeConfig(t, cliConfig)
	out := filepath.Join(t.TempDir(), "exposed.env")

	code, _, stderr := runCLI(t, "-f", dir, "-p", "dev", "--out", out)
	require.Equal(t, ExitSuccess, code, stderr)

	written, err := env.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NAME": "envex", "STATIC": "fixed"}, written)

	code, _, stderr = runCLI(t, "-f", dir, "-p", "dev", "--out", out)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "Existing file (use --overwrite flag?): "+out)

	code, _, _ = runCLI(t, "-f", dir, "-p", "dev", "run", "-w", "--out", out)
	assert.Equal(t, ExitSuccess, code)
}

func TestCLI_Errors(t *testing.T) {
	dir := writeConfig(t, cliConfig)

	tests := []struct {
		name     string
		args     []string
		code     int
		contains string
	}{
		{name: "missing profile", args: []string{"-f", dir, "get", "X"}, code: ExitUsageError, contains: "option '--profile|-p' is required"},
		{name: "get without key", args: []string{"-f", dir, "-p", "dev", "get"}, code: ExitUsageError},
		{name: "unknown flag", args: []string{"list", "--nope"}, code: ExitUsageError},
		{name: "bad timeout", args: []string{"-f", dir, "-p", "dev", "--timeout", "soon", "get", "X"}, code: ExitUsageError, contains: "invalid timeout value"},
		{name: "unknown profile", args: []string{"-f", dir, "-p", "nope", "--", "true"}, code: ExitConfigError, contains: "Unknown profile: nope"},
		{name: "missing config", args: []string{"-f", filepath.Join(dir, "missing"), "-p", "dev", "--", "true"}, code: ExitConfigError, contains: "Unable to find a valid envex config file"},
		{name: "unreachable server", args: []string{"-f", dir, "-p", "dev", "--socket-dir", socketDir(t), "--timeout", "100ms", "get", "X"}, code: ExitExchangeError, contains: "client connect timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, stderr, tt.contains)
		})
	}
}

func TestCLI_ListAndValidate(t *testing.T) {
	dir := writeConfig(t, cliConfig)

	code, stdout, _ := runCLI(t, "-f", dir, "list", "-o", "json")
	require.Equal(t, ExitSuccess, code)

	var listed output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	require.Len(t, listed.Profiles, 3)
	assert.Equal(t, "dev", listed.Profiles[1].Name)
	assert.Equal(t, []string{"base"}, listed.Profiles[1].Parents)
	assert.Equal(t, []string{"GREETING", "NAME"}, listed.Profiles[1].Env)
	assert.Equal(t, []string{"NAME", "STATIC"}, listed.Profiles[1].Expose)
	assert.Contains(t, listed.Errors, "Circular reference for profile: loop")

	code, stdout, _ = runCLI(t, "validate", dir)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stdout, "loop (Circular reference for profile: loop)")
}

func TestCLI_InitWritesValidConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	code, stdout, _ := runCLI(t, "init", dir)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, filepath.Join(dir, config.StarterFile))

	code, _, stderr := runCLI(t, "init", dir)
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "use --force to overwrite")

	code, _, _ = runCLI(t, "init", dir, "--force")
	assert.Equal(t, ExitSuccess, code)

	code, stdout, _ = runCLI(t, "validate", dir)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Profiles: 3 valid, 3 total")
}
