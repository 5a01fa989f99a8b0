// Package output renders envex command results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output
//
// Both formatters describe profiles for the list command and validation
// outcomes for the validate command. The JSON formatter accumulates and
// writes a single document on Flush.
package output
