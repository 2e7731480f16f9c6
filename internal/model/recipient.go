// internal/model/recipient.go
package model

import (
	"fmt"
	"time"
)

// Recipient is a globally deduplicated contact. Empty strings stand for NULL.
type Recipient struct {
	ID         int            `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	Email      string         `db:"email" json:"email,omitempty"`
	Phone      string         `db:"phone" json:"phone,omitempty"`
	Platform   Channel        `db:"platform" json:"platform,omitempty"`
	PlatformID string         `db:"platform_id" json:"platform_id,omitempty"`
	Metadata   map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Merge overlays the non-empty fields of in onto r. Metadata keys merge one by one.
func (r *Recipient) Merge(in *Recipient) {
	if in.Name != "" {
		r.Name = in.Name
	}
	if in.Email != "" {
		r.Email = in.Email
	}
	if in.Phone != "" {
		r.Phone = in.Phone
	}
	if in.Platform != "" {
		r.Platform = in.Platform
	}
	if in.PlatformID != "" {
		r.PlatformID = in.PlatformID
	}
	if len(in.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		for k, v := range in.Metadata {
			if v != nil {
				r.Metadata[k] = v
			}
		}
	}
}

// Meta returns a metadata value as a string, or "" when absent.
func (r *Recipient) Meta(key string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ReachableOn reports whether r carries the contact field ch needs.
func (r *Recipient) ReachableOn(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return r.Email != ""
	case ChannelWhatsApp:
		return r.Phone != ""
	default:
		return ch.IsSocial() && r.Platform == ch && r.PlatformID != ""
	}
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// CampaignRecipient is a recipient's membership in one campaign.
type CampaignRecipient struct {
	CampaignID  int             `db:"campaign_id" json:"campaign_id"`
	RecipientID int             `db:"recipient_id" json:"recipient_id"`
	Status      RecipientStatus `db:"status" json:"status"`
	AddedAt     time.Time       `db:"added_at" json:"added_at"`
	UpdatedAt   *time.Time      `db:"updated_at" json:"updated_at,omitempty"`

	Recipient *Recipient `json:"recipient,omitempty"`
}
