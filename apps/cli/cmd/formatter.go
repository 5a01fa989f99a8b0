package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/envex/packages/output"
)

// Formatter interface for all output formatters
type Formatter interface {
	FormatProfiles(file string, profiles []output.ProfileInfo)
	FormatValidation(v *output.Validation)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush() error
}

func newFormatter(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verboseFlag > 0),
			output.WithNoColor(noColorFlag),
		), nil
	}
	return nil, withExitCode(ExitUsageError, fmt.Errorf("unknown output format %q (use console or json)", format))
}

func flush(f Formatter) error {
	if flushable, ok := f.(Flushable); ok {
		if err := flushable.Flush(); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
	}
	return nil
}
