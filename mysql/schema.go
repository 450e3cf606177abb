package mysql

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BINARY(16) NOT NULL,
	source VARCHAR(255) NOT NULL,
	source_id VARCHAR(255) NOT NULL,
	channel VARCHAR(255) NOT NULL,
	payload %s NOT NULL,
	payload_type VARCHAR(255) NOT NULL DEFAULT '',
	status VARCHAR(6) NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	status_message VARCHAR(%d) NULL,
	created_at DATETIME(6) NOT NULL,
	sent_at DATETIME(6) NULL,
	PRIMARY KEY (id),
	INDEX idx_status_created (status, created_at, id),
	INDEX idx_created (created_at)
);`

const (
	payloadJSON   = "JSON"
	payloadBinary = "LONGBLOB"
)

// Schema returns the DDL for an outbox table with JSON payloads.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaBinary returns the DDL for an outbox table with raw byte payloads
// (protobuf, Avro and other non-JSON encodings).
func SchemaBinary(table string) (string, error) {
	return buildSchema(table, payloadBinary)
}

func buildSchema(table, payloadType string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, payloadType, maxStatusMessageLen), nil
}
