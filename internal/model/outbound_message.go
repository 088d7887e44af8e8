// internal/model/outbound_message.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Channel string

const ChannelSMS Channel = "sms"

type MessageStatus string

const (
	StatusPending            MessageStatus = "pending"
	StatusQueued             MessageStatus = "queued"
	StatusSending            MessageStatus = "sending"
	StatusSent               MessageStatus = "sent"
	StatusDelivered          MessageStatus = "delivered"
	StatusRead               MessageStatus = "read"
	StatusFailed             MessageStatus = "failed"
	StatusProcessingFallback MessageStatus = "processing_fallback"
	StatusFallbackWhatsApp   MessageStatus = "fallback_whatsapp"
	StatusError              MessageStatus = "error"
)

// Valid reports whether s is one of the known message statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSending, StatusSent, StatusDelivered,
		StatusRead, StatusFailed, StatusProcessingFallback, StatusFallbackWhatsApp, StatusError:
		return true
	default:
		return false
	}
}

// RetryEntry is one line of the append-only audit trail of a message.
type RetryEntry struct {
	Attempt   int       `json:"attempt"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RetryHistory is stored as a jsonb array.
type RetryHistory []RetryEntry

// Scan implements the sql.Scanner interface for RetryHistory.
func (h *RetryHistory) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into RetryHistory", value)
	}
	if len(raw) == 0 {
		*h = nil
		return nil
	}
	return json.Unmarshal(raw, h)
}

// Value implements the driver.Valuer interface for RetryHistory.
func (h RetryHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type OutboundMessage struct {
	ID           string        `db:"id" json:"id"`
	Channel      Channel       `db:"-" json:"channel"`
	Phone        string        `db:"phone" json:"phone"`
	Message      string        `db:"message" json:"message"`
	Status       MessageStatus `db:"status" json:"status"`
	RetryCount   int           `db:"retry_count" json:"retry_count"`
	MaxRetries   int           `db:"max_retries" json:"max_retries"`
	RetryHistory RetryHistory  `db:"retry_history" json:"retry_history"`
	ContactID    *string       `db:"contact_id" json:"contact_id,omitempty"`
	LeaderID     *string       `db:"leader_id" json:"leader_id,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	SentAt       *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt  *time.Time    `db:"delivered_at" json:"delivered_at,omitempty"`
}
