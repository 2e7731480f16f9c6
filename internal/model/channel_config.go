// internal/model/channel_config.go
package model

import (
	"encoding/json"
	"time"
)

// ChannelConfig is the active provider configuration of a channel.
// Settings is the provider-specific JSON document.
type ChannelConfig struct {
	ID        int             `db:"id" json:"id"`
	Channel   Channel         `db:"channel" json:"channel"`
	Settings  json.RawMessage `db:"settings" json:"settings"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// Decode unmarshals Settings into v.
func (c *ChannelConfig) Decode(v any) error {
	if len(c.Settings) == 0 {
		return nil
	}
	return json.Unmarshal(c.Settings, v)
}

// Sender is an identity a connector sends as (page, profile, number, address).
type Sender struct {
	ID        int             `db:"id" json:"id"`
	Channel   Channel         `db:"channel" json:"channel"`
	Name      string          `db:"name" json:"name"`
	Address   string          `db:"address" json:"address"`
	IsDefault bool            `db:"is_default" json:"is_default"`
	Settings  json.RawMessage `db:"settings" json:"settings,omitempty"`
}

// ChannelLog is one row of a per-channel send log.
type ChannelLog struct {
	Channel             Channel   `json:"channel"`
	RecipientID         int       `json:"recipient_id"`
	PlatformRecipientID string    `json:"platform_recipient_id"`
	SenderID            string    `json:"sender_id"`
	SenderName          string    `json:"sender_name"`
	MessageID           string    `json:"message_id,omitempty"`
	CampaignID          *int      `json:"campaign_id,omitempty"`
	Status              string    `json:"status"`
	ErrorDetails        string    `json:"error_details,omitempty"`
	SentAt              time.Time `json:"sent_at"`
}
