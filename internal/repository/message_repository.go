// internal/repository/message_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type MessageRepositoryInterface interface {
	// Upsert stores the template for (campaign, channel), replacing any previous one.
	Upsert(ctx context.Context, m *model.Message) error
	ListByCampaign(ctx context.Context, campaignID int) ([]*model.Message, error)
}

type MessageRepository struct {
	DB *sql.DB
}

func (r *MessageRepository) Upsert(ctx context.Context, m *model.Message) error {
	now := time.Now()
	query := `
		INSERT INTO outreach_messages (campaign_id, channel, template, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (campaign_id, channel)
		DO UPDATE SET template = EXCLUDED.template, updated_at = $4
		RETURNING id, created_at
	`
	return r.DB.QueryRowContext(ctx, query, m.CampaignID, string(m.Channel), m.Template, now).Scan(&m.ID, &m.CreatedAt)
}

func (r *MessageRepository) ListByCampaign(ctx context.Context, campaignID int) ([]*model.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, campaign_id, channel, template, created_at, updated_at
		FROM outreach_messages
		WHERE campaign_id = $1
		ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var (
			m       model.Message
			ch      string
			updated sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.CampaignID, &ch, &m.Template, &m.CreatedAt, &updated); err != nil {
			return nil, err
		}
		m.Channel = model.Channel(ch)
		if updated.Valid {
			t := updated.Time
			m.UpdatedAt = &t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
