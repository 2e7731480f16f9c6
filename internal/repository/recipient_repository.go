// internal/repository/recipient_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type RecipientRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Recipient, error)
	// FindByPlatform returns nil, nil when no recipient has that platform identity.
	FindByPlatform(ctx context.Context, platform model.Channel, platformID string) (*model.Recipient, error)

	// Enroll upserts every recipient and links it to the campaign in a
	// single transaction. Any failure rolls the whole batch back. The count
	// covers new memberships only.
	Enroll(ctx context.Context, campaignID int, recipients []*model.Recipient) (int, error)

	ListPending(ctx context.Context, campaignID, limit int) ([]*model.CampaignRecipient, error)
	CountPending(ctx context.Context, campaignID int) (int, error)
	UpdateMembershipStatus(ctx context.Context, campaignID, recipientID int, status model.RecipientStatus) error
}

type RecipientRepository struct {
	DB *sql.DB
}

func (r *RecipientRepository) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const recipientColumns = `id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''),
		COALESCE(platform, ''), COALESCE(platform_id, ''), metadata, created_at, updated_at`

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var (
		rc       model.Recipient
		platform string
		meta     []byte
		updated  sql.NullTime
	)
	if err := row.Scan(&rc.ID, &rc.Name, &rc.Email, &rc.Phone, &platform, &rc.PlatformID, &meta, &rc.CreatedAt, &updated); err != nil {
		return nil, err
	}
	rc.Platform = model.Channel(platform)
	if updated.Valid {
		t := updated.Time
		rc.UpdatedAt = &t
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &rc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for recipient %d: %w", rc.ID, err)
		}
	}
	return &rc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int) (*model.Recipient, error) {
	rc, err := scanRecipient(r.DB.QueryRowContext(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewRecipientNotFound(id)
		}
		return nil, err
	}
	return rc, nil
}

func (r *RecipientRepository) FindByPlatform(ctx context.Context, platform model.Channel, platformID string) (*model.Recipient, error) {
	rc, err := scanRecipient(r.DB.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM recipients WHERE platform=$1 AND platform_id=$2 ORDER BY id LIMIT 1`,
		string(platform), platformID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rc, err
}

// FindMatching returns the recipient sharing email, phone or (platform, platform_id) with in.
func (r *RecipientRepository) FindMatching(ctx context.Context, q Querier, in *model.Recipient) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients
		WHERE ($1 <> '' AND email = $1)
		OR ($2 <> '' AND phone = $2)
		OR ($3 <> '' AND $4 <> '' AND platform = $3 AND platform_id = $4)
		ORDER BY id
		LIMIT 1`
	rc, err := scanRecipient(q.QueryRowContext(ctx, query, in.Email, in.Phone, string(in.Platform), in.PlatformID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rc, err
}

func (r *RecipientRepository) Insert(ctx context.Context, q Querier, in *model.Recipient) error {
	meta, err := marshalMetadata(in.Metadata)
	if err != nil {
		return err
	}
	in.CreatedAt = time.Now()
	query := `
		INSERT INTO recipients (name, email, phone, platform, platform_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return q.QueryRowContext(ctx, query,
		nullString(in.Name), nullString(in.Email), nullString(in.Phone),
		nullString(string(in.Platform)), nullString(in.PlatformID), meta, in.CreatedAt,
	).Scan(&in.ID)
}

// Update writes the merged recipient; empty fields never overwrite stored values.
func (r *RecipientRepository) Update(ctx context.Context, q Querier, rc *model.Recipient) error {
	meta, err := marshalMetadata(rc.Metadata)
	if err != nil {
		return err
	}
	query := `
		UPDATE recipients
		SET name=COALESCE($1, name),
			email=COALESCE($2, email),
			phone=COALESCE($3, phone),
			platform=COALESCE($4, platform),
			platform_id=COALESCE($5, platform_id),
			metadata=$6,
			updated_at=$7
		WHERE id=$8
	`
	_, err = q.ExecContext(ctx, query,
		nullString(rc.Name), nullString(rc.Email), nullString(rc.Phone),
		nullString(string(rc.Platform)), nullString(rc.PlatformID), meta, time.Now(), rc.ID,
	)
	return err
}

// AddToCampaign links a recipient and reports whether a new link was
// created. Re-adding is a no-op.
func (r *RecipientRepository) AddToCampaign(ctx context.Context, q Querier, campaignID, recipientID int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO campaign_recipients (campaign_id, recipient_id, status, added_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (campaign_id, recipient_id) DO NOTHING
	`, campaignID, recipientID, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *RecipientRepository) Enroll(ctx context.Context, campaignID int, recipients []*model.Recipient) (int, error) {
	added := 0
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		for i, in := range recipients {
			existing, err := r.FindMatching(ctx, tx, in)
			if err != nil {
				return fmt.Errorf("recipient %d: lookup: %w", i, err)
			}
			if existing != nil {
				existing.Merge(in)
				if err := r.Update(ctx, tx, existing); err != nil {
					return fmt.Errorf("recipient %d: update: %w", i, err)
				}
				in.ID = existing.ID
			} else if err := r.Insert(ctx, tx, in); err != nil {
				return fmt.Errorf("recipient %d: insert: %w", i, err)
			}
			linked, err := r.AddToCampaign(ctx, tx, campaignID, in.ID)
			if err != nil {
				return fmt.Errorf("recipient %d: link: %w", i, err)
			}
			if linked {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListPending returns pending members oldest first. limit <= 0 means all.
func (r *RecipientRepository) ListPending(ctx context.Context, campaignID, limit int) ([]*model.CampaignRecipient, error) {
	query := `
		SELECT cr.campaign_id, cr.recipient_id, cr.status, cr.added_at, cr.updated_at,
			r.id, COALESCE(r.name, ''), COALESCE(r.email, ''), COALESCE(r.phone, ''),
			COALESCE(r.platform, ''), COALESCE(r.platform_id, ''), r.metadata, r.created_at, r.updated_at
		FROM campaign_recipients cr
		JOIN recipients r ON r.id = cr.recipient_id
		WHERE cr.campaign_id = $1 AND cr.status = 'pending'
		ORDER BY cr.added_at ASC, cr.recipient_id ASC`
	args := []any{campaignID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CampaignRecipient
	for rows.Next() {
		var (
			cr       model.CampaignRecipient
			rc       model.Recipient
			status   string
			platform string
			meta     []byte
			crUpd    sql.NullTime
			rUpd     sql.NullTime
		)
		if err := rows.Scan(&cr.CampaignID, &cr.RecipientID, &status, &cr.AddedAt, &crUpd,
			&rc.ID, &rc.Name, &rc.Email, &rc.Phone, &platform, &rc.PlatformID, &meta, &rc.CreatedAt, &rUpd); err != nil {
			return nil, err
		}
		cr.Status = model.RecipientStatus(status)
		rc.Platform = model.Channel(platform)
		if crUpd.Valid {
			t := crUpd.Time
			cr.UpdatedAt = &t
		}
		if rUpd.Valid {
			t := rUpd.Time
			rc.UpdatedAt = &t
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &rc.Metadata); err != nil {
				return nil, err
			}
		}
		cr.Recipient = &rc
		out = append(out, &cr)
	}
	return out, rows.Err()
}

func (r *RecipientRepository) CountPending(ctx context.Context, campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 AND status='pending'`, campaignID,
	).Scan(&n)
	return n, err
}

func (r *RecipientRepository) UpdateMembershipStatus(ctx context.Context, campaignID, recipientID int, status model.RecipientStatus) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE campaign_recipients SET status=$1, updated_at=$2 WHERE campaign_id=$3 AND recipient_id=$4`,
		string(status), time.Now(), campaignID, recipientID,
	)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
