// Package exchange lets one envex process read the values another process
// exposes.
//
// The exposing process runs a Server on a Unix socket whose name is
// derived from the config file path and profile (see Address). Other
// processes compute the same address, Dial it and send requests over a
// persistent connection. Messages are CBOR encoded; each request carries a
// sequence number that its response echoes.
//
// Requests:
//
//	getvar {key}  ->  {key, val}   val is absent when key was never exposed
//	hello  {}     ->  {id}         id is a random per-server uuid
//
// Any other request name is answered with "unknown request: <name>".
package exchange
