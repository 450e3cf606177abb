package mysql

import (
	"fmt"
	"strings"
)

const (
	columns    = "id, source, source_id, channel, payload, payload_type, status, retry_count, status_message, created_at, sent_at"
	lockRow    = " FOR UPDATE"
	skipLocked = " FOR UPDATE SKIP LOCKED"
	afterKey   = " AND (created_at > ? OR (created_at = ? AND id > ?))"
	pageOrder  = " ORDER BY created_at ASC, id ASC LIMIT ?"
)

type queries struct {
	insert        string
	upsert        string
	selectByID    string
	byStatus      string
	byStatusAfter string
	stuck         string
	stuckAfter    string
	deleteOlder   string
	countByStatus string
}

func newQueries(table string) queries {
	selectBase := fmt.Sprintf("SELECT %s FROM %s", columns, table)
	byStatus := selectBase + " WHERE status = ? AND retry_count <= ?"
	stuck := selectBase + " WHERE status = ? AND created_at <= ?"

	return queries{
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", table, columns),
		upsert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) AS new "+
				"ON DUPLICATE KEY UPDATE status = new.status, retry_count = new.retry_count, "+
				"status_message = new.status_message, sent_at = new.sent_at",
			table,
			columns,
		),
		selectByID:    selectBase + " WHERE id = ?",
		byStatus:      byStatus + pageOrder,
		byStatusAfter: byStatus + afterKey + pageOrder,
		stuck:         stuck + pageOrder,
		stuckAfter:    stuck + afterKey + pageOrder,
		deleteOlder:   fmt.Sprintf("DELETE FROM %s WHERE created_at < ? ORDER BY created_at ASC LIMIT ?", table),
		countByStatus: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table),
	}
}

func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || strings.IndexFunc(part, invalidIdentRune) >= 0 {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

func invalidIdentRune(r rune) bool {
	return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
}
