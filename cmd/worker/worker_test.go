package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository/repotest"
)

func TestWorkerAppliesQueuedEvents(t *testing.T) {
	store := repotest.NewStore()
	q := queue.NewInMemoryQueue()
	defer q.Close()

	require.NoError(t, subscribe(q, "analytics", store.Metrics()))

	campaignID, recipientID := 7, 11
	pub := &queue.Publisher{Queue: q, Topic: "analytics"}
	ctx := context.Background()
	require.NoError(t, pub.Track(ctx, &model.AnalyticsEvent{
		EventType: model.EventSend, Channel: model.ChannelEmail,
		CampaignID: &campaignID, RecipientID: &recipientID, Success: true,
	}))
	require.NoError(t, pub.Track(ctx, &model.AnalyticsEvent{
		EventType: model.EventOpen, Channel: model.ChannelEmail,
		CampaignID: &campaignID, RecipientID: &recipientID, Success: true,
	}))
	q.Drain()

	require.Len(t, store.Events(), 2)

	row := store.Row(model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: campaignID})
	require.NotNil(t, row)
	require.Equal(t, 1, row.Counters.Sent)
	require.Equal(t, 1, row.Counters.Opened)

	rec := store.Row(model.MetricsKey{Scope: model.ScopeRecipient, RecipientID: recipientID})
	require.NotNil(t, rec)
	require.Equal(t, 1, rec.TotalReceived)
}

func TestWorkerDropsMalformedPayloads(t *testing.T) {
	store := repotest.NewStore()
	q := queue.NewInMemoryQueue()
	defer q.Close()

	require.NoError(t, subscribe(q, "analytics", store.Metrics()))
	require.NoError(t, q.Publish(context.Background(), "analytics", []byte("{not json")))
	q.Drain()

	require.Empty(t, store.Events())
}
