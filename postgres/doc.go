// Package postgres provides a PostgreSQL storage adapter for the outbox built on GORM.
//
// Store implements outbox.Repository with READ COMMITTED transactions,
// FOR UPDATE SKIP LOCKED recovery pages and pg_try_advisory_lock for retention.
// Migrate applies the embedded migrations that create the default outbox_message table.
package postgres
