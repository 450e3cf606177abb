// Package memory provides an in-process outbox Repository and Sink.
//
// The repository keeps records in a map and gives transactions snapshot-free,
// serialized semantics: InTx runs one transaction at a time and applies its writes
// atomically on success. It is meant for tests, examples and single-process tools.
package memory
