package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

func TestMetricsGetAbsentRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaign_channel_metrics WHERE campaign_id = $1 AND channel = $2")).
		WithArgs(3, "email").
		WillReturnRows(sqlmock.NewRows([]string{"s", "d", "f", "o", "c", "r", "rcv", "last"}))

	row, err := repo.Get(context.Background(), model.MetricsKey{Scope: model.ScopeCampaignChannel, CampaignID: 3, Channel: model.ChannelEmail})
	require.NoError(t, err)
	require.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsGetExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM recipient_metrics WHERE recipient_id = $1")).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"s", "d", "f", "o", "c", "r", "rcv", "last"}).
			AddRow(2, 1, 0, 1, 0, 0, 3, now))

	row, err := repo.Get(context.Background(), model.MetricsKey{Scope: model.ScopeRecipient, RecipientID: 8})
	require.NoError(t, err)
	require.Equal(t, model.Counters{Sent: 2, Delivered: 1, Opened: 1}, row.Counters)
	require.Equal(t, 3, row.TotalReceived)
	require.NotNil(t, row.LastInteraction)
}

func TestMetricsInsertReportsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO channel_metrics (channel, total_sent")).
		WithArgs("sms", 1, 0, 0, 0, 0, 0, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Insert(context.Background(), &model.MetricsRow{
		Key:      model.MetricsKey{Scope: model.ScopeChannel, Channel: "sms"},
		Counters: model.Counters{Sent: 1},
	})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsIncrementIsAdditive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("total_sent = total_sent + $1")).
		WithArgs(0, 0, 1, 0, 0, 0, 0, at, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Increment(context.Background(), model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: 5},
		model.Counters{Failed: 1}, 0, at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsUnknownScope(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	_, err = repo.Get(context.Background(), model.MetricsKey{Scope: "weekly"})
	require.Error(t, err)
}

func TestInsertEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &repository.MetricsRepository{DB: db}
	cid, rid := 1, 2
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outreach_analytics")).
		WithArgs("send", "email", 1, 2, "s-1", "m-1", true, []byte(`{"k":"v"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.InsertEvent(context.Background(), &model.AnalyticsEvent{
		EventType: model.EventSend, Channel: model.ChannelEmail, CampaignID: &cid, RecipientID: &rid,
		SenderID: "s-1", MessageID: "m-1", Success: true, Metadata: map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
