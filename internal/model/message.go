// internal/model/message.go
package model

import "time"

// Message is a campaign's template for one channel.
type Message struct {
	ID         int        `db:"id" json:"id"`
	CampaignID int        `db:"campaign_id" json:"campaign_id"`
	Channel    Channel    `db:"channel" json:"channel"`
	Template   string     `db:"template" json:"template"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type AttemptStatus string

const (
	AttemptSent   AttemptStatus = "sent"
	AttemptFailed AttemptStatus = "failed"
)

// OutreachAttempt is the append-only log row of one send.
type OutreachAttempt struct {
	ID             int           `db:"id" json:"id"`
	Channel        Channel       `db:"channel" json:"channel"`
	RecipientID    *int          `db:"recipient_id" json:"recipient_id,omitempty"`
	CampaignID     *int          `db:"campaign_id" json:"campaign_id,omitempty"`
	MessageID      string        `db:"message_id" json:"message_id,omitempty"`
	Status         AttemptStatus `db:"status" json:"status"`
	ErrorDetails   string        `db:"error_details" json:"error_details,omitempty"`
	SentAt         time.Time     `db:"sent_at" json:"sent_at"`
	MessageContent string        `db:"message_content" json:"message_content"`
}

// DeliveryResult is the outcome of a dispatch. Dispatch never returns an error.
type DeliveryResult struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"message_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	Error     string   `json:"error,omitempty"`
	Details   []string `json:"details,omitempty"`
	SenderID  string   `json:"sender_id,omitempty"`
}

func Delivered(messageID, status string) DeliveryResult {
	return DeliveryResult{Success: true, MessageID: messageID, Status: status}
}

func Failed(err string, details ...string) DeliveryResult {
	return DeliveryResult{Success: false, Error: err, Details: details}
}
