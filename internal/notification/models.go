package notification

import (
	"encoding/json"
	"time"
)

// Kind classifies what a notification is about.
type Kind string

const (
	KindExpirationWarning   Kind = "expiration_warning"
	KindRenewalConfirmation Kind = "renewal_confirmation"
	KindPaymentReminder     Kind = "payment_reminder"
)

// Status is the lifecycle state of a notification record.
//
// pending -> sent | failed; sent -> delivered -> read. The delivered and
// read upgrades come from out-of-band gateway receipts, never from the
// dispatch loop itself.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// Record is the durable audit row for one attempted delivery. Records are
// append-only: the state, timestamp and diagnostic fields are each set at
// most once, at send-resolution or receipt time.
type Record struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	PhoneNumber    string          `json:"phone_number"`
	MessageBody    string          `json:"message_body"`
	DaysNotice     *int            `json:"days_notice,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	APIResponse    json.RawMessage `json:"api_response,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	RetryCount     int             `json:"retry_count"`
}
