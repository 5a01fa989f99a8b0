// Package tap provides the escape-stripped live copy of a child process's
// output that expose rules watch while the process runs.
package tap
