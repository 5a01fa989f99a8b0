package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/envex/packages/core/config"
	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/exchange"
	"github.com/abdul-hamid-achik/envex/packages/expose"
	"github.com/abdul-hamid-achik/envex/packages/output"
)

var listOutputFlag string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles in the config file",
	Long: `List the profiles defined in the config file with the profiles they
inherit from. With -v the working directory, env and expose names and the
exchange address are shown too.

Examples:
  envex list
  envex list -f ./config/.envexrc.yaml -o json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVarP(&listOutputFlag, "output", "o", getEnvString("ENVEX_OUTPUT", "console"), "Output format: console, json (env: ENVEX_OUTPUT)")
}

func listCommand(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(listOutputFlag, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var profiles []output.ProfileInfo
	for _, name := range cfg.ProfileNames() {
		info, err := describeProfile(cmd.Context(), cfg, name)
		if err != nil {
			formatter.FormatError(err)
		}
		profiles = append(profiles, info)
	}
	formatter.FormatProfiles(cfg.Path, profiles)
	return flush(formatter)
}

// describeProfile collects what list shows for name. It returns partial
// information with the error when the profile does not resolve.
func describeProfile(ctx context.Context, cfg *config.File, name string) (output.ProfileInfo, error) {
	info := output.ProfileInfo{
		Name:    name,
		Parents: cfg.Parents(name),
		Address: exchange.Address(cfg.Path, name),
	}

	p, err := cfg.Profile(name)
	if err != nil {
		return info, err
	}
	info.Cwd = p.Cwd

	ec := env.NewContext(nil)
	ec.Extend(p.Env)
	defs, err := ec.Definitions(ctx)
	if err != nil {
		return info, err
	}
	for _, d := range defs {
		info.Env = append(info.Env, d.Name)
	}

	xc := expose.NewContext()
	if err := xc.Extend(p.Expose); err != nil {
		return info, err
	}
	info.Expose = xc.Names()
	return info, nil
}
