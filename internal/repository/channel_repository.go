// internal/repository/channel_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// ChannelConfigRepositoryInterface reads and rewrites provider configuration.
type ChannelConfigRepositoryInterface interface {
	// GetActive returns nil, nil when the channel has no active config.
	GetActive(ctx context.Context, ch model.Channel) (*model.ChannelConfig, error)
	SaveSettings(ctx context.Context, ch model.Channel, settings json.RawMessage) error
}

type SenderRepositoryInterface interface {
	GetByID(ctx context.Context, ch model.Channel, id int) (*model.Sender, error)
	GetDefault(ctx context.Context, ch model.Channel) (*model.Sender, error)
}

type ChannelLogRepositoryInterface interface {
	Insert(ctx context.Context, l *model.ChannelLog) error
}

type ChannelConfigRepository struct {
	DB *sql.DB
}

func (r *ChannelConfigRepository) GetActive(ctx context.Context, ch model.Channel) (*model.ChannelConfig, error) {
	var (
		c        model.ChannelConfig
		channel  string
		settings []byte
		updated  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, channel, settings, is_active, created_at, updated_at
		FROM outreach_channel_config
		WHERE channel = $1 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1
	`, string(ch)).Scan(&c.ID, &channel, &settings, &c.IsActive, &c.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Channel = model.Channel(channel)
	c.Settings = settings
	if updated.Valid {
		t := updated.Time
		c.UpdatedAt = &t
	}
	return &c, nil
}

func (r *ChannelConfigRepository) SaveSettings(ctx context.Context, ch model.Channel, settings json.RawMessage) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE outreach_channel_config
		SET settings = $1, updated_at = $2
		WHERE channel = $3 AND is_active = true
	`, []byte(settings), time.Now(), string(ch))
	return err
}

type SenderRepository struct {
	DB *sql.DB
}

const senderColumns = `id, channel, COALESCE(name, ''), COALESCE(address, ''), is_default, settings`

func (r *SenderRepository) scanOne(row *sql.Row) (*model.Sender, error) {
	var (
		s        model.Sender
		ch       string
		settings []byte
	)
	err := row.Scan(&s.ID, &ch, &s.Name, &s.Address, &s.IsDefault, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Channel = model.Channel(ch)
	s.Settings = settings
	return &s, nil
}

func (r *SenderRepository) GetByID(ctx context.Context, ch model.Channel, id int) (*model.Sender, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+senderColumns+` FROM outreach_senders WHERE id = $1 AND channel = $2`, id, string(ch)))
}

func (r *SenderRepository) GetDefault(ctx context.Context, ch model.Channel) (*model.Sender, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+senderColumns+` FROM outreach_senders WHERE channel = $1 AND is_default = true ORDER BY id LIMIT 1`, string(ch)))
}

// ChannelLogRepository writes to the <channel>_logs tables.
type ChannelLogRepository struct {
	DB *sql.DB
}

var logTables = map[model.Channel]string{
	model.ChannelEmail:     "email_logs",
	model.ChannelWhatsApp:  "whatsapp_logs",
	model.ChannelLinkedIn:  "linkedin_logs",
	model.ChannelFacebook:  "facebook_logs",
	model.ChannelInstagram: "instagram_logs",
	model.ChannelTelegram:  "telegram_logs",
}

func (r *ChannelLogRepository) Insert(ctx context.Context, l *model.ChannelLog) error {
	table, ok := logTables[l.Channel]
	if !ok {
		return fmt.Errorf("no log table for channel %q", l.Channel)
	}
	if l.SentAt.IsZero() {
		l.SentAt = time.Now()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (recipient_id, platform_recipient_id, sender_id, sender_name, message_id, campaign_id, status, error_details, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, table)
	_, err := r.DB.ExecContext(ctx, query,
		l.RecipientID, l.PlatformRecipientID, l.SenderID, l.SenderName, nullString(l.MessageID),
		l.CampaignID, l.Status, nullString(l.ErrorDetails), l.SentAt,
	)
	return err
}

var (
	_ ChannelConfigRepositoryInterface = (*ChannelConfigRepository)(nil)
	_ SenderRepositoryInterface        = (*SenderRepository)(nil)
	_ ChannelLogRepositoryInterface    = (*ChannelLogRepository)(nil)
)
