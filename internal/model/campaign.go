// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusDraft      CampaignStatus = "draft"
	StatusScheduled  CampaignStatus = "scheduled"
	StatusInProgress CampaignStatus = "in_progress"
	StatusCompleted  CampaignStatus = "completed"
)

var statusRank = map[CampaignStatus]int{
	StatusDraft:      0,
	StatusScheduled:  1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

func (s CampaignStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle forward-only.
// Staying on the same status is allowed.
func (s CampaignStatus) CanAdvanceTo(next CampaignStatus) bool {
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to >= from
}

// Predecessors lists the statuses from which next is reachable, next included.
func (next CampaignStatus) Predecessors() []string {
	out := []string{}
	for s, r := range statusRank {
		if r <= statusRank[next] {
			out = append(out, string(s))
		}
	}
	return out
}

// IsActive reports whether the scheduler should keep a job for this status.
func (s CampaignStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusInProgress
}

type Campaign struct {
	ID              int              `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	Description     string           `db:"description" json:"description"`
	Channels        []Channel        `db:"channels" json:"channels"`
	StartDate       time.Time        `db:"start_date" json:"start_date"`
	EndDate         *time.Time       `db:"end_date" json:"end_date,omitempty"`
	Status          CampaignStatus   `db:"status" json:"status"`
	ScheduleOptions *ScheduleOptions `db:"schedule_options" json:"schedule_options,omitempty"`
	CreatedBy       string           `db:"created_by" json:"created_by"`

	Company        string `db:"company" json:"company,omitempty"`
	Website        string `db:"website" json:"website,omitempty"`
	ContactPhone   string `db:"contact_phone" json:"contact_phone,omitempty"`
	ContactEmail   string `db:"contact_email" json:"contact_email,omitempty"`
	Purpose        string `db:"purpose" json:"purpose,omitempty"`
	UseEnhancement bool   `db:"use_enhancement" json:"use_enhancement"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// HasChannel reports whether ch is part of the campaign's channel set.
func (c *Campaign) HasChannel(ch Channel) bool {
	for _, x := range c.Channels {
		if x == ch {
			return true
		}
	}
	return false
}

// Expired reports whether the end date is set and before now.
func (c *Campaign) Expired(now time.Time) bool {
	return c.EndDate != nil && c.EndDate.Before(now)
}

// CampaignStats aggregates recipient outcomes for a campaign.
type CampaignStats struct {
	TotalRecipients   int `json:"total_recipients"`
	PendingRecipients int `json:"pending_recipients"`
	ReachedRecipients int `json:"reached_recipients"`
	FailedRecipients  int `json:"failed_recipients"`
}

type CampaignDetails struct {
	*Campaign
	Stats CampaignStats `json:"stats"`
}
