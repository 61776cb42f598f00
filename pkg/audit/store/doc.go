// Package store provides audit.Store implementations.
//
// MemoryStore keeps records in a map and is meant for tests and local runs.
// SQLStore persists records through sqlx and supports three drivers:
//
//   - "sqlite3" - github.com/mattn/go-sqlite3 (cgo, default)
//   - "sqlite"  - modernc.org/sqlite (pure Go)
//   - "postgres" - github.com/lib/pq
//
// Every backend orders results by timestamp and then ID, which lets the
// retention sweep fetch stable batches of the oldest records.
package store
