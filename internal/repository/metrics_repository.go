// internal/repository/metrics_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type MetricsRepositoryInterface interface {
	InsertEvent(ctx context.Context, ev *model.AnalyticsEvent) error

	// Get returns nil, nil when the key has no row yet.
	Get(ctx context.Context, key model.MetricsKey) (*model.MetricsRow, error)
	// Insert seeds a row. It reports false when a concurrent writer created it first.
	Insert(ctx context.Context, row *model.MetricsRow) (bool, error)
	// Increment adds delta to an existing row. Counters never decrease.
	Increment(ctx context.Context, key model.MetricsKey, delta model.Counters, received int, at time.Time) error
}

type MetricsRepository struct {
	DB *sql.DB
}

type scopeTable struct {
	table   string
	keyCols []string
}

var scopeTables = map[model.MetricsScope]scopeTable{
	model.ScopeCampaign:        {"campaign_metrics", []string{"campaign_id"}},
	model.ScopeChannel:         {"channel_metrics", []string{"channel"}},
	model.ScopeCampaignChannel: {"campaign_channel_metrics", []string{"campaign_id", "channel"}},
	model.ScopeRecipient:       {"recipient_metrics", []string{"recipient_id"}},
}

func keyArgs(k model.MetricsKey) []any {
	switch k.Scope {
	case model.ScopeCampaign:
		return []any{k.CampaignID}
	case model.ScopeChannel:
		return []any{string(k.Channel)}
	case model.ScopeCampaignChannel:
		return []any{k.CampaignID, string(k.Channel)}
	case model.ScopeRecipient:
		return []any{k.RecipientID}
	}
	return nil
}

func lookupScope(k model.MetricsKey) (scopeTable, error) {
	t, ok := scopeTables[k.Scope]
	if !ok {
		return scopeTable{}, fmt.Errorf("unknown metrics scope %q", k.Scope)
	}
	return t, nil
}

// whereKey renders "a = $n AND b = $n+1" starting at placeholder first.
func whereKey(cols []string, first int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s = $%d", c, first+i)
	}
	return strings.Join(parts, " AND ")
}

func (r *MetricsRepository) InsertEvent(ctx context.Context, ev *model.AnalyticsEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO outreach_analytics (event_type, channel, campaign_id, recipient_id, sender_id, message_id, success, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(ev.EventType), string(ev.Channel), ev.CampaignID, ev.RecipientID,
		nullString(ev.SenderID), nullString(ev.MessageID), ev.Success, meta, ev.CreatedAt)
	return err
}

func (r *MetricsRepository) Get(ctx context.Context, key model.MetricsKey) (*model.MetricsRow, error) {
	t, err := lookupScope(key)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT total_sent, total_delivered, total_failed, total_opened, total_clicked, total_replied,
			total_received, last_interaction
		FROM %s WHERE %s`, t.table, whereKey(t.keyCols, 1))

	row := model.MetricsRow{Key: key}
	var last sql.NullTime
	err = r.DB.QueryRowContext(ctx, query, keyArgs(key)...).Scan(
		&row.Counters.Sent, &row.Counters.Delivered, &row.Counters.Failed,
		&row.Counters.Opened, &row.Counters.Clicked, &row.Counters.Replied,
		&row.TotalReceived, &last,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		row.LastInteraction = &t
	}
	return &row, nil
}

func (r *MetricsRepository) Insert(ctx context.Context, row *model.MetricsRow) (bool, error) {
	t, err := lookupScope(row.Key)
	if err != nil {
		return false, err
	}
	cols := append(append([]string{}, t.keyCols...),
		"total_sent", "total_delivered", "total_failed", "total_opened", "total_clicked", "total_replied",
		"total_received", "last_interaction", "updated_at")
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		t.table, strings.Join(cols, ", "), strings.Join(ph, ", "), strings.Join(t.keyCols, ", "))

	c := row.Counters
	args := append(keyArgs(row.Key),
		c.Sent, c.Delivered, c.Failed, c.Opened, c.Clicked, c.Replied,
		row.TotalReceived, row.LastInteraction, time.Now())
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MetricsRepository) Increment(ctx context.Context, key model.MetricsKey, d model.Counters, received int, at time.Time) error {
	t, err := lookupScope(key)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			total_sent = total_sent + $1,
			total_delivered = total_delivered + $2,
			total_failed = total_failed + $3,
			total_opened = total_opened + $4,
			total_clicked = total_clicked + $5,
			total_replied = total_replied + $6,
			total_received = total_received + $7,
			last_interaction = $8,
			updated_at = $8
		WHERE %s`, t.table, whereKey(t.keyCols, 9))

	args := append([]any{d.Sent, d.Delivered, d.Failed, d.Opened, d.Clicked, d.Replied, received, at}, keyArgs(key)...)
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

var _ MetricsRepositoryInterface = (*MetricsRepository)(nil)
