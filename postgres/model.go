package postgres

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	outbox "github.com/velmie/txoutbox"
)

const maxStatusMessageLen = 1024

type message struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Source        string     `gorm:"column:source"`
	SourceID      string     `gorm:"column:source_id"`
	Channel       string     `gorm:"column:channel"`
	Payload       []byte     `gorm:"column:payload;type:bytea"`
	PayloadType   string     `gorm:"column:payload_type"`
	Status        string     `gorm:"column:status"`
	RetryCount    int        `gorm:"column:retry_count"`
	StatusMessage *string    `gorm:"column:status_message"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	SentAt        *time.Time `gorm:"column:sent_at"`
}

func toModel(r outbox.Record) message {
	m := message{
		ID:          r.ID.UUID(),
		Source:      r.Source,
		SourceID:    r.SourceID,
		Channel:     r.Channel,
		Payload:     r.Payload,
		PayloadType: r.PayloadType,
		Status:      r.Status.String(),
		RetryCount:  r.RetryCount,
		CreatedAt:   r.CreatedAt,
		SentAt:      r.SentAt,
	}
	if r.StatusMessage != "" {
		msg := truncateMessage(r.StatusMessage)
		m.StatusMessage = &msg
	}

	return m
}

func (m message) record() (outbox.Record, error) {
	status, err := outbox.ParseStatus(m.Status)
	if err != nil {
		return outbox.Record{}, err
	}

	r := outbox.Record{
		ID:          outbox.ID(m.ID),
		Source:      m.Source,
		SourceID:    m.SourceID,
		Channel:     m.Channel,
		Payload:     m.Payload,
		PayloadType: m.PayloadType,
		Status:      status,
		RetryCount:  m.RetryCount,
		CreatedAt:   m.CreatedAt.UTC(),
	}
	if m.StatusMessage != nil {
		r.StatusMessage = *m.StatusMessage
	}
	if m.SentAt != nil {
		t := m.SentAt.UTC()
		r.SentAt = &t
	}

	return r, nil
}

func toRecords(models []message) ([]outbox.Record, error) {
	records := make([]outbox.Record, 0, len(models))
	for _, m := range models {
		r, err := m.record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxStatusMessageLen {
		return msg
	}

	return string([]rune(msg)[:maxStatusMessageLen])
}
