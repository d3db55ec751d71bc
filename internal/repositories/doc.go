// Package repositories implements SQLite persistence for sync run history.
//
// [SyncRunRepository] stores one row per campaign per run in sync_runs, with per-pass detail in
// sync_passes. Rows support soft deletes via deleted_at timestamps and deleted rows are excluded
// from queries by default.
//
// [RunRecorder] adapts the repository to tasks.RunRecorder so the engine records every finished
// campaign. The approved email set itself is never persisted; each run recomputes it.
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
