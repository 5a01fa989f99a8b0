package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/output"
)

var validateOutputFlag string

var validateCmd = &cobra.Command{
	Use:   "validate [rc-file]",
	Short: "Validate the config file and its profiles",
	Long: `Check the config file against the config schema, then resolve every
profile's inheritance and imports and compile its expose rules. Nothing is
executed: command substitutions are not run.

Examples:
  envex validate
  envex validate ./config/.envexrc.json`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVarP(&validateOutputFlag, "output", "o", getEnvString("ENVEX_OUTPUT", "console"), "Output format: console, json (env: ENVEX_OUTPUT)")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(validateOutputFlag, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	path := rcFileFlag
	if len(args) > 0 {
		path = args[0]
	}

	if verboseFlag > 0 {
		formatter.FormatHeader(version)
	}
	v := validateFile(cmd, path)
	formatter.FormatValidation(v)
	if err := flush(formatter); err != nil {
		return err
	}

	if !v.Valid() {
		return withExitCode(ExitConfigError, nil)
	}
	return nil
}

func validateFile(cmd *cobra.Command, path string) *output.Validation {
	v := &output.Validation{File: path}
	cfg, err := config.Load(path, config.WithLogger(logger))
	if err != nil {
		v.Err = err
		return v
	}
	v.File = cfg.Path

	for _, name := range cfg.ProfileNames() {
		_, err := describeProfile(cmd.Context(), cfg, name)
		v.Profiles = append(v.Profiles, output.ProfileCheck{Name: name, Err: err})
	}
	return v
}
