package analytics_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type memMetrics struct {
	mu       sync.Mutex
	events   []*model.AnalyticsEvent
	rows     map[model.MetricsKey]*model.MetricsRow
	failOn   model.MetricsScope
	eventErr error
}

func newMemMetrics() *memMetrics {
	return &memMetrics{rows: map[model.MetricsKey]*model.MetricsRow{}}
}

func (m *memMetrics) InsertEvent(_ context.Context, ev *model.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventErr != nil {
		return m.eventErr
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memMetrics) Get(_ context.Context, key model.MetricsKey) (*model.MetricsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.Scope == m.failOn {
		return nil, errors.New("table missing")
	}
	r, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memMetrics) Insert(_ context.Context, row *model.MetricsRow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[row.Key]; ok {
		return false, nil
	}
	cp := *row
	m.rows[row.Key] = &cp
	return true, nil
}

func (m *memMetrics) Increment(_ context.Context, key model.MetricsKey, d model.Counters, received int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[key]
	r.Counters = r.Counters.Add(d)
	r.TotalReceived += received
	r.LastInteraction = &at
	return nil
}

func (m *memMetrics) row(key model.MetricsKey) model.MetricsRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[key]; ok {
		return *r
	}
	return model.MetricsRow{}
}

func intPtr(i int) *int { return &i }

func TestTrackAggregatesAllScopes(t *testing.T) {
	repo := newMemMetrics()
	tr := analytics.NewTracker(repo)
	ctx := context.Background()

	send := func(et model.EventType, ok bool) {
		require.NoError(t, tr.Track(ctx, &model.AnalyticsEvent{
			EventType: et, Channel: model.ChannelEmail, CampaignID: intPtr(1), RecipientID: intPtr(9), Success: ok,
		}))
	}
	send(model.EventSend, true)
	send(model.EventSend, false)
	send(model.EventDelivered, true)
	send(model.EventOpen, true)
	send(model.EventReply, true)

	require.Len(t, repo.events, 5)

	c := repo.row(model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: 1})
	require.Equal(t, model.Counters{Sent: 1, Failed: 1, Delivered: 1, Opened: 1, Replied: 1}, c.Counters)

	cc := repo.row(model.MetricsKey{Scope: model.ScopeCampaignChannel, CampaignID: 1, Channel: model.ChannelEmail})
	require.Equal(t, c.Counters, cc.Counters)

	ch := repo.row(model.MetricsKey{Scope: model.ScopeChannel, Channel: model.ChannelEmail})
	require.Equal(t, 1, ch.Counters.Sent)

	r := repo.row(model.MetricsKey{Scope: model.ScopeRecipient, RecipientID: 9})
	require.Equal(t, 2, r.TotalReceived)
	require.NotNil(t, r.LastInteraction)
}

func TestTrackWithoutCampaignSkipsCampaignScopes(t *testing.T) {
	repo := newMemMetrics()
	tr := analytics.NewTracker(repo)

	require.NoError(t, tr.Track(context.Background(), &model.AnalyticsEvent{
		EventType: model.EventClick, Channel: model.ChannelTelegram,
	}))
	require.Len(t, repo.rows, 1)
	require.Equal(t, 1, repo.row(model.MetricsKey{Scope: model.ScopeChannel, Channel: model.ChannelTelegram}).Counters.Clicked)
}

func TestTrackScopeFailureDoesNotStopOthers(t *testing.T) {
	repo := newMemMetrics()
	repo.failOn = model.ScopeChannel
	repo.eventErr = errors.New("event log down")
	tr := analytics.NewTracker(repo)

	err := tr.Track(context.Background(), &model.AnalyticsEvent{
		EventType: model.EventSend, Channel: model.ChannelWhatsApp, CampaignID: intPtr(2), RecipientID: intPtr(3), Success: true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "event log down")
	require.Contains(t, err.Error(), "channel metrics")

	require.Equal(t, 1, repo.row(model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: 2}).Counters.Sent)
	require.Equal(t, 1, repo.row(model.MetricsKey{Scope: model.ScopeCampaignChannel, CampaignID: 2, Channel: model.ChannelWhatsApp}).Counters.Sent)
	require.Equal(t, 1, repo.row(model.MetricsKey{Scope: model.ScopeRecipient, RecipientID: 3}).TotalReceived)
}

func TestTrackCountersAreMonotonicUnderConcurrency(t *testing.T) {
	repo := newMemMetrics()
	tr := analytics.NewTracker(repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Track(context.Background(), &model.AnalyticsEvent{
				EventType: model.EventSend, Channel: model.ChannelEmail, CampaignID: intPtr(5), Success: true,
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, repo.row(model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: 5}).Counters.Sent)
}

func TestTrackRejectsInvalidEvents(t *testing.T) {
	tr := analytics.NewTracker(newMemMetrics())
	require.Error(t, tr.Track(context.Background(), &model.AnalyticsEvent{EventType: "bounce", Channel: model.ChannelEmail}))
	require.Error(t, tr.Track(context.Background(), &model.AnalyticsEvent{EventType: model.EventOpen, Channel: "fax"}))
	require.Error(t, tr.Track(context.Background(), nil))
}

func TestTrackReportsNotAppliedWhenEveryStepFails(t *testing.T) {
	repo := newMemMetrics()
	repo.failOn = model.ScopeChannel
	repo.eventErr = errors.New("db down")
	tr := analytics.NewTracker(repo)

	err := tr.Track(context.Background(), &model.AnalyticsEvent{EventType: model.EventOpen, Channel: model.ChannelEmail})
	require.ErrorIs(t, err, analytics.ErrNotApplied)

	err = tr.Track(context.Background(), &model.AnalyticsEvent{EventType: model.EventOpen, Channel: model.ChannelEmail, CampaignID: intPtr(1)})
	require.Error(t, err)
	require.NotErrorIs(t, err, analytics.ErrNotApplied)
}
