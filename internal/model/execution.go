// internal/model/execution.go
package model

// RecipientOutcome is the per-recipient line of an execution pass.
type RecipientOutcome struct {
	RecipientID int      `json:"recipient_id"`
	Success     bool     `json:"success"`
	Channel     Channel  `json:"channel,omitempty"`
	MessageID   string   `json:"message_id,omitempty"`
	Error       string   `json:"error,omitempty"`
	Details     []string `json:"details,omitempty"`
}

// ExecutionResult aggregates one pass over a campaign's pending recipients.
type ExecutionResult struct {
	CampaignID int                `json:"campaign_id"`
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Completed  bool               `json:"completed"`
	Details    []RecipientOutcome `json:"details"`
}
