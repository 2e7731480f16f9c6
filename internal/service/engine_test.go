package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/connector"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository/repotest"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type sinkFunc func(ctx context.Context, ev *model.AnalyticsEvent) error

func (f sinkFunc) Track(ctx context.Context, ev *model.AnalyticsEvent) error { return f(ctx, ev) }

func newEngine(store *repotest.Store, sink sinkFunc, conns ...connector.Connector) *service.OutreachEngine {
	var e *service.OutreachEngine
	if sink == nil {
		e = service.NewOutreachEngine(connector.NewRegistry(conns...), store.Attempts(), nil)
	} else {
		e = service.NewOutreachEngine(connector.NewRegistry(conns...), store.Attempts(), sink)
	}
	return e
}

func TestSendMessageLogsAttemptAndTracks(t *testing.T) {
	store := repotest.NewStore()
	var events []*model.AnalyticsEvent
	sink := sinkFunc(func(_ context.Context, ev *model.AnalyticsEvent) error {
		events = append(events, ev)
		return errors.New("analytics down")
	})
	tg := &fakeConnector{ch: model.ChannelTelegram}
	e := newEngine(store, sink, tg)

	r := &model.Recipient{ID: 3, Name: "Tom Ray", Platform: model.ChannelTelegram, PlatformID: "42"}
	c := &model.Campaign{ID: 8, Name: "Promo"}
	res := e.SendMessage(context.Background(), "Hey {{recipient.firstName}}", model.ChannelTelegram, r, c)

	require.True(t, res.Success)
	require.Equal(t, "telegram-msg", res.MessageID)
	require.Equal(t, []string{"Hey Tom"}, tg.messages())

	attempts := store.AttemptLog()
	require.Len(t, attempts, 1)
	require.Equal(t, model.AttemptSent, attempts[0].Status)
	require.Equal(t, "telegram-msg", attempts[0].MessageID)
	require.Equal(t, "Hey Tom", attempts[0].MessageContent)
	require.Equal(t, 8, *attempts[0].CampaignID)

	require.Len(t, events, 1)
	require.Equal(t, model.EventSend, events[0].EventType)
	require.True(t, events[0].Success)
	require.Equal(t, 3, *events[0].RecipientID)
}

func TestSendMessageInlineRecipientLogsNullRecipient(t *testing.T) {
	store := repotest.NewStore()
	var events []*model.AnalyticsEvent
	sink := sinkFunc(func(_ context.Context, ev *model.AnalyticsEvent) error {
		events = append(events, ev)
		return nil
	})
	e := newEngine(store, sink, &fakeConnector{ch: model.ChannelEmail})

	res := e.SendMessage(context.Background(), "Hi {{recipient.firstName}}", model.ChannelEmail,
		&model.Recipient{Name: "Ann Lee", Email: "ann@x.io"}, nil)
	require.True(t, res.Success)

	attempts := store.AttemptLog()
	require.Len(t, attempts, 1)
	require.Nil(t, attempts[0].RecipientID)
	require.Equal(t, "Hi Ann", attempts[0].MessageContent)

	require.Len(t, events, 1)
	require.Nil(t, events[0].RecipientID)
}

func TestSendMessageFailureRecordsErrorDetails(t *testing.T) {
	store := repotest.NewStore()
	e := newEngine(store, nil, &fakeConnector{ch: model.ChannelWhatsApp, fail: true})

	res := e.SendMessage(context.Background(), "Hi", model.ChannelWhatsApp, &model.Recipient{ID: 1, Phone: "+1555"}, nil)
	require.False(t, res.Success)

	attempts := store.AttemptLog()
	require.Len(t, attempts, 1)
	require.Equal(t, model.AttemptFailed, attempts[0].Status)
	require.Nil(t, attempts[0].CampaignID)
	require.Equal(t, "Failed to send whatsapp message: provider said no", attempts[0].ErrorDetails)
}

func TestSendMessageValidationFailure(t *testing.T) {
	store := repotest.NewStore()
	email := &fakeConnector{ch: model.ChannelEmail}
	e := newEngine(store, nil, email)

	res := e.SendMessage(context.Background(), "   ", model.ChannelEmail, &model.Recipient{ID: 1, Email: "a@x.io"}, nil)
	require.False(t, res.Success)
	require.Equal(t, "Message validation failed", res.Error)
	require.NotEmpty(t, res.Details)
	require.Empty(t, email.messages())
	require.Empty(t, store.AttemptLog())
}

func TestSendMessageUnknownChannel(t *testing.T) {
	store := repotest.NewStore()
	e := newEngine(store, nil, &fakeConnector{ch: model.ChannelEmail})

	res := e.SendMessage(context.Background(), "Hi", model.ChannelTelegram, &model.Recipient{ID: 1}, nil)
	require.False(t, res.Success)
	require.Equal(t, "No connector available for channel: telegram", res.Error)
	require.Empty(t, store.AttemptLog())
}

func TestSendMessageRecoversPanics(t *testing.T) {
	store := repotest.NewStore()
	e := newEngine(store, nil, &fakeConnector{ch: model.ChannelFacebook, panics: true})

	var res model.DeliveryResult
	require.NotPanics(t, func() {
		res = e.SendMessage(context.Background(), "Hi", model.ChannelFacebook, &model.Recipient{ID: 1}, nil)
	})
	require.False(t, res.Success)
	require.Equal(t, "Failed to send message", res.Error)
	require.Equal(t, []string{"provider exploded"}, res.Details)

	res = e.SendMessage(context.Background(), "Hi", model.ChannelFacebook, nil, nil)
	require.False(t, res.Success)
	require.Equal(t, "Failed to send message", res.Error)
}

func TestServiceSendMessageLoadsStoredRecipient(t *testing.T) {
	email := &fakeConnector{ch: model.ChannelEmail}
	h := newHarness(t, nil, email)
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, nil)
	r := &model.Recipient{Name: "Ann Lee", Email: "ann@x.io"}
	h.enroll(t, c.ID, r)

	res, err := h.svc.SendMessage(context.Background(), "Hi {{recipient.firstName}}", model.ChannelEmail, &model.Recipient{ID: r.ID}, &c.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, email.messages()[0], "Hi Ann")

	missing := 999
	_, err = h.svc.SendMessage(context.Background(), "Hi", model.ChannelEmail, &model.Recipient{ID: r.ID}, &missing)
	require.Error(t, err)
}
