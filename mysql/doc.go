// Package mysql provides a MySQL 8.0.19+ storage adapter for the outbox.
//
// Store implements outbox.Repository on top of database/sql:
//   - READ COMMITTED transactions (to avoid gap locks)
//   - SELECT ... FOR UPDATE SKIP LOCKED for recovery pages, so instances never
//     redeliver the same row concurrently
//   - keyset pagination on (created_at, id)
//   - chunked DELETE ... ORDER BY created_at LIMIT n for retention
//   - GET_LOCK advisory locks so a single instance purges at a time
//
// Business code writes records through Tx, which runs outbox hooks around COMMIT.
// See Schema (JSON payloads) or SchemaBinary (raw bytes) for the table layout.
package mysql
