package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// truncate shortens long values for display.
func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatProfiles(file string, profiles []ProfileInfo) {
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s:\n", bold(file))
	if len(profiles) == 0 {
		fmt.Fprintf(f.writer, "  (no profiles)\n")
		return
	}

	for _, p := range profiles {
		fmt.Fprintf(f.writer, "  - %s", p.Name)
		if len(p.Parents) > 0 {
			fmt.Fprintf(f.writer, " %s", cyan("<- "+strings.Join(p.Parents, ", ")))
		}
		fmt.Fprintf(f.writer, "\n")

		if !f.verbose {
			continue
		}
		if p.Cwd != "" {
			fmt.Fprintf(f.writer, "    cwd: %s\n", p.Cwd)
		}
		if len(p.Env) > 0 {
			fmt.Fprintf(f.writer, "    env: %s\n", truncate(strings.Join(p.Env, ", "), 100))
		}
		if len(p.Expose) > 0 {
			fmt.Fprintf(f.writer, "    expose: %s\n", truncate(strings.Join(p.Expose, ", "), 100))
		}
		if p.Address != "" {
			fmt.Fprintf(f.writer, "    address: %s\n", p.Address)
		}
	}
}

func (f *ConsoleFormatter) FormatValidation(v *Validation) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if v.Err != nil {
		fmt.Fprintf(f.writer, "%s %s\n", red("✗"), v.File)
		fmt.Fprintf(f.writer, "    %s %v\n", red("→"), v.Err)
		return
	}

	fmt.Fprintf(f.writer, "%s %s\n", green("✓"), v.File)
	failed := 0
	for _, p := range v.Profiles {
		if p.Err != nil {
			failed++
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), p.Name, red(fmt.Sprintf("(%v)", p.Err)))
			continue
		}
		if f.verbose {
			fmt.Fprintf(f.writer, "  %s %s\n", green("✓"), p.Name)
		}
	}

	fmt.Fprintf(f.writer, "Profiles: ")
	if passed := len(v.Profiles) - failed; passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d valid", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d invalid", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(v.Profiles))
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("envex"), version)
}
