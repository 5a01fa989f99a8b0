// Package expose collects the values a run publishes to other processes.
//
// Rules are registered with Context.Extend and executed by Context.Apply.
// Fixed values, env references and producer functions run once. Regex rules
// watch the tap for as long as the child process writes to it and expose
// every new match, so a later match for the same name replaces the earlier
// one.
package expose
