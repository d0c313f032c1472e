// Package storage provides the keyed blob persistence used by the schedule store.
//
// A blob is an opaque byte slice addressed by (namespace, key). The schedule
// package uses the configured plugin identity as namespace and the account ID
// as key, so every account owns exactly one document.
//
// Drivers:
//   - "memory": process-local map (tests, dry runs)
//   - "file": one JSON file per blob under a base directory
//   - "sqlite": single SQLite database file
//   - "postgres": shared PostgreSQL database (pgx)
package storage
