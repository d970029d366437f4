// Package store is the persistence collaborator of the dispatcher.
//
// It reads active schedules and tenant-scoped report data and writes back
// the run timestamps of a schedule. Three drivers are available:
//
//   - "sqlite": a single database file (modernc.org/sqlite, pure Go), the default
//   - "postgres": a shared database via sqlx and lib/pq
//   - "memory": an in-process store for tests and dry runs
//
// Connectivity failures are wrapped with ErrUnavailable so callers can retry
// them; every other error is permanent.
package store
