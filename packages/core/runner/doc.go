// Package runner resolves a profile's environment and runs commands in it.
//
// A Session loads a profile from a config file, resolves its env on top of
// the parent environment and either runs a child process or applies the
// expose rules on their own. Command substitutions found while resolving
// are run by an Evaluator, in a fresh Session when they name a profile.
//
// Exposed values go to the attached exposers: an exchange server that
// other envex processes query with "envex get", an env file, or both.
package runner
