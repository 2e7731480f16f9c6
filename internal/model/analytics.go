// internal/model/analytics.go
package model

import "time"

type EventType string

const (
	EventSend      EventType = "send"
	EventDelivered EventType = "delivered"
	EventOpen      EventType = "open"
	EventClick     EventType = "click"
	EventReply     EventType = "reply"
)

func (e EventType) Valid() bool {
	switch e {
	case EventSend, EventDelivered, EventOpen, EventClick, EventReply:
		return true
	}
	return false
}

// AnalyticsEvent is one tracked outreach event.
type AnalyticsEvent struct {
	EventType   EventType      `json:"event_type"`
	Channel     Channel        `json:"channel"`
	CampaignID  *int           `json:"campaign_id,omitempty"`
	RecipientID *int           `json:"recipient_id,omitempty"`
	SenderID    string         `json:"sender_id,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	Success     bool           `json:"success"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Counters is the shared counter block of every aggregate scope.
type Counters struct {
	Sent      int `json:"total_sent"`
	Delivered int `json:"total_delivered"`
	Failed    int `json:"total_failed"`
	Opened    int `json:"total_opened"`
	Clicked   int `json:"total_clicked"`
	Replied   int `json:"total_replied"`
}

// Delta returns the contribution of e to the aggregate counters.
func (e *AnalyticsEvent) Delta() Counters {
	var d Counters
	switch e.EventType {
	case EventSend:
		if e.Success {
			d.Sent = 1
		} else {
			d.Failed = 1
		}
	case EventDelivered:
		d.Delivered = 1
	case EventOpen:
		d.Opened = 1
	case EventClick:
		d.Clicked = 1
	case EventReply:
		d.Replied = 1
	}
	return d
}

// Received reports whether e counts toward a recipient's total_received.
func (e *AnalyticsEvent) Received() bool {
	return (e.EventType == EventSend && e.Success) || e.EventType == EventDelivered
}

func (c Counters) Add(d Counters) Counters {
	return Counters{
		Sent:      c.Sent + d.Sent,
		Delivered: c.Delivered + d.Delivered,
		Failed:    c.Failed + d.Failed,
		Opened:    c.Opened + d.Opened,
		Clicked:   c.Clicked + d.Clicked,
		Replied:   c.Replied + d.Replied,
	}
}

// MetricsScope names one aggregate table.
type MetricsScope string

const (
	ScopeCampaign        MetricsScope = "campaign"
	ScopeChannel         MetricsScope = "channel"
	ScopeCampaignChannel MetricsScope = "campaign_channel"
	ScopeRecipient       MetricsScope = "recipient"
)

// MetricsKey identifies a row inside a scope.
type MetricsKey struct {
	Scope       MetricsScope
	CampaignID  int
	Channel     Channel
	RecipientID int
}

// MetricsRow is the current state of one aggregate row.
type MetricsRow struct {
	Key             MetricsKey `json:"-"`
	Counters        Counters   `json:"counters"`
	TotalReceived   int        `json:"total_received,omitempty"`
	LastInteraction *time.Time `json:"last_interaction,omitempty"`
}
