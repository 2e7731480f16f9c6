package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

var campaignCols = []string{
	"id", "name", "description", "channels", "start_date", "end_date", "status",
	"schedule_options", "created_by", "company", "website", "contact_phone", "contact_email", "purpose",
	"use_enhancement", "created_at", "updated_at",
}

func campaignRow(rows *sqlmock.Rows, id int, status string, opts []byte) *sqlmock.Rows {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "Launch", "", []byte("{whatsapp,email}"), now, nil, status,
		opts, "admin", "MDTS", "", "", "", "", true, now, nil)
}

func TestCampaignCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaigns")).
		WithArgs("Launch", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "draft", nil,
			"admin", "", "", "", "", "", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	c := &model.Campaign{Name: "Launch", Channels: []model.Channel{model.ChannelEmail}, CreatedBy: "admin"}
	require.NoError(t, repo.Create(context.Background(), c))
	require.Equal(t, 7, c.ID)
	require.Equal(t, model.StatusDraft, c.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id=$1")).
		WithArgs(3).
		WillReturnRows(campaignRow(sqlmock.NewRows(campaignCols), 3, "scheduled", []byte(`{"frequency":"daily","hour":0,"batch_size":10}`)))

	c, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []model.Channel{model.ChannelWhatsApp, model.ChannelEmail}, c.Channels)
	require.Equal(t, model.StatusScheduled, c.Status)
	require.NotNil(t, c.ScheduleOptions)
	require.Equal(t, model.FrequencyDaily, c.ScheduleOptions.Frequency)
	require.NotNil(t, c.ScheduleOptions.Hour)
	require.Equal(t, 0, *c.ScheduleOptions.Hour)
	require.Nil(t, c.ScheduleOptions.Minute)
	require.Equal(t, 10, c.ScheduleOptions.EffectiveBatchSize())
	require.Nil(t, c.EndDate)
	require.True(t, c.UseEnhancement)
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id=$1")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err = repo.GetByID(context.Background(), 99)
	var nf *appErrors.ErrCampaignNotFound
	require.True(t, errors.As(err, &nf))
	require.Equal(t, 99, nf.CampaignID)
}

func TestCampaignAdvanceStatusGuardsBackwardMoves(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3 AND status = ANY($4)")).
		WithArgs("scheduled", sqlmock.AnyArg(), 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.AdvanceStatus(context.Background(), 5, model.StatusScheduled)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignListCampaignsPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM campaigns WHERE 1=1 AND $1 = ANY(channels) AND status=$2")).
		WithArgs("email", "draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	rows := sqlmock.NewRows(campaignCols)
	campaignRow(rows, 2, "draft", nil)
	campaignRow(rows, 1, "draft", nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id DESC LIMIT $3 OFFSET $4")).
		WithArgs("email", "draft", 2, 10).
		WillReturnRows(rows)

	list, total, err := repo.ListCampaigns(context.Background(), 10, 2, "email", "draft")
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.Len(t, list, 2)
	require.Nil(t, list[0].ScheduleOptions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.CampaignRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaign_recipients cr")).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "reached", "failed"}).AddRow(10, 3, 6, 1))

	s, err := repo.GetStats(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, model.CampaignStats{TotalRecipients: 10, PendingRecipients: 3, ReachedRecipients: 6, FailedRecipients: 1}, s)
}
