// Package database provides SQLite connectivity for notify-core.
//
// It wraps database/sql with the mattn/go-sqlite3 driver and handles
// connection setup (WAL mode, busy timeout, file permissions), health
// checks and schema migration for the audit trail.
//
// The schema is versioned through an in-code migration list; each
// migration runs in its own transaction and is recorded in
// schema_migrations, so re-running Migrate after a failure resumes
// where it stopped.
//
// The audit trail is history, not state: notify-core rebuilds its
// working state from the platform on every start, and nothing here is
// read back into the reconnect or reconciliation paths.
package database
