// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error)

	// AdvanceStatus moves a campaign forward. It reports false when the
	// current status is already past the requested one.
	AdvanceStatus(ctx context.Context, id int, status model.CampaignStatus) (bool, error)
	SetSchedule(ctx context.Context, id int, opts *model.ScheduleOptions) error

	// ListSchedulable returns active campaigns whose window contains now.
	ListSchedulable(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	GetStats(ctx context.Context, id int) (model.CampaignStats, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, COALESCE(description, ''), channels, start_date, end_date, status,
		schedule_options, COALESCE(created_by, ''), COALESCE(company, ''), COALESCE(website, ''),
		COALESCE(contact_phone, ''), COALESCE(contact_email, ''), COALESCE(purpose, ''),
		use_enhancement, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c        model.Campaign
		channels []string
		end      sql.NullTime
		updated  sql.NullTime
		opts     []byte
		status   string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, pq.Array(&channels), &c.StartDate, &end, &status,
		&opts, &c.CreatedBy, &c.Company, &c.Website, &c.ContactPhone, &c.ContactEmail, &c.Purpose,
		&c.UseEnhancement, &c.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	c.Status = model.CampaignStatus(status)
	for _, ch := range channels {
		c.Channels = append(c.Channels, model.Channel(ch))
	}
	if end.Valid {
		t := end.Time
		c.EndDate = &t
	}
	if updated.Valid {
		t := updated.Time
		c.UpdatedAt = &t
	}
	if len(opts) > 0 && string(opts) != "null" {
		var so model.ScheduleOptions
		if err := json.Unmarshal(opts, &so); err != nil {
			return nil, fmt.Errorf("decode schedule_options for campaign %d: %w", c.ID, err)
		}
		c.ScheduleOptions = &so
	}
	return &c, nil
}

func channelStrings(chs []model.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = string(ch)
	}
	return out
}

func marshalOptions(opts *model.ScheduleOptions) (any, error) {
	if opts == nil {
		return nil, nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	opts, err := marshalOptions(c.ScheduleOptions)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO campaigns (name, description, channels, start_date, end_date, status, schedule_options,
			created_by, company, website, contact_phone, contact_email, purpose, use_enhancement, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Description, pq.Array(channelStrings(c.Channels)), c.StartDate, c.EndDate, string(c.Status), opts,
		c.CreatedBy, c.Company, c.Website, c.ContactPhone, c.ContactEmail, c.Purpose, c.UseEnhancement, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if channel != "" {
		where += fmt.Sprintf(" AND $%d = ANY(channels)", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) AdvanceStatus(ctx context.Context, id int, status model.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3 AND status = ANY($4)`
	res, err := r.DB.ExecContext(ctx, query, string(status), time.Now(), id, pq.Array(status.Predecessors()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) SetSchedule(ctx context.Context, id int, opts *model.ScheduleOptions) error {
	b, err := marshalOptions(opts)
	if err != nil {
		return err
	}
	query := `
		UPDATE campaigns
		SET schedule_options=$1,
			start_date=COALESCE($2, start_date),
			end_date=COALESCE($3, end_date),
			updated_at=$4
		WHERE id=$5
	`
	var start, end *time.Time
	if opts != nil {
		start, end = opts.StartDate, opts.EndDate
	}
	res, err := r.DB.ExecContext(ctx, query, b, start, end, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) ListSchedulable(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE status IN ('scheduled', 'in_progress')
		AND start_date <= $1
		AND (end_date IS NULL OR end_date >= $1)
		ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepository) GetStats(ctx context.Context, id int) (model.CampaignStats, error) {
	var s model.CampaignStats
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE cr.status = 'pending'),
			(SELECT COUNT(DISTINCT oa.recipient_id) FROM outreach_attempts oa
				WHERE oa.campaign_id = $1 AND oa.status = 'sent'),
			COUNT(*) FILTER (WHERE cr.status = 'failed')
		FROM campaign_recipients cr
		WHERE cr.campaign_id = $1
	`
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&s.TotalRecipients, &s.PendingRecipients, &s.ReachedRecipients, &s.FailedRecipients,
	)
	return s, err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
