// internal/repository/attempt_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type AttemptRepositoryInterface interface {
	Insert(ctx context.Context, a *model.OutreachAttempt) error
}

// AttemptRepository appends to outreach_attempts. Rows are never updated.
type AttemptRepository struct {
	DB *sql.DB
}

func (r *AttemptRepository) Insert(ctx context.Context, a *model.OutreachAttempt) error {
	if a.SentAt.IsZero() {
		a.SentAt = time.Now()
	}
	query := `
		INSERT INTO outreach_attempts (channel, recipient_id, campaign_id, message_id, status, error_details, sent_at, message_content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		string(a.Channel), a.RecipientID, a.CampaignID, nullString(a.MessageID),
		string(a.Status), nullString(a.ErrorDetails), a.SentAt, a.MessageContent,
	).Scan(&a.ID)
}

var _ AttemptRepositoryInterface = (*AttemptRepository)(nil)
