// Package outbox provides a transactional outbox with pluggable storage and message sinks.
//
// Typical flow:
//  1. Inside a business transaction, call Emitter.EmitEvent (or Emit for typed payloads).
//     The record is written by a before-commit hook on the transaction, so it commits
//     or rolls back together with the business change.
//  2. After commit, Publisher attempts one delivery in a new transaction and marks the
//     record SENT on success. Failures are logged and never reach the caller.
//  3. Recovery periodically redelivers FAILED records within the retry budget and NEW
//     records older than the stuck delay. Retention removes records past their lifetime.
//
// Delivery is at-least-once: consumers deduplicate on the HeaderMessageID header.
//
// Storage adapters live in the mysql, postgres and memory packages. Sinks live in the
// kafka, redis and rabbitmq packages.
package outbox
