// Package parser tokenizes envex template strings and definition keys.
//
// A template is plain text interleaved with references:
//   - ${NAME} and $NAME (bare names are limited to [A-Za-z0-9_])
//   - $(COMMAND), where \) inside COMMAND stands for a literal close-paren
//     and an optional leading [profile] selects the profile the command
//     runs under
//
// Definition keys carry a suffix grammar: NAME! overrides an inherited
// value, NAME? and [NAME] mark the variable optional.
package parser
