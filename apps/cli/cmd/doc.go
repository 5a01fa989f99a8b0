// Package cmd implements the envex CLI commands using Cobra.
//
// Available commands:
//   - run: Run a command in a profile's environment (the default command)
//   - get: Print a var exposed by another envex process
//   - list: Show the profiles of a config file
//   - validate: Check a config file without running anything
//   - init: Write a starter .envexrc.yaml
//   - version: Show envex version information
//   - completion: Generate shell completion scripts
//
// Flags shared by all commands select the config file (-f), the profile
// (-p), logging verbosity (-v) and the exchange socket directory and
// timeout. Most flags default from ENVEX_* environment variables.
package cmd
