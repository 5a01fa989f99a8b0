// Package env resolves envex variable definitions.
//
// A Context layers definitions over a frozen parent environment:
//   - Extend queues Map, List, Func or Ref configs, applied in call order
//   - Resolve expands every template concurrently, waiting on local
//     definitions, falling back to the parent environment, and running
//     $(...) substitutions through a CommandRunner
//   - dependency cycles and undefined references fail instead of hanging
//
// The package also reads and writes the KEY=VALUE env-file format.
package env
