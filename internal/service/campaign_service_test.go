package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/connector"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func TestPagination(t *testing.T) {
	h := newHarness(t, nil)
	for i := 1; i <= 5; i++ {
		h.store.AddCampaign(&model.Campaign{Name: "C", Channels: []model.Channel{model.ChannelEmail}})
	}
	ctx := context.Background()
	pageSize := 2

	page1, pagination1, err := h.svc.ListCampaigns(ctx, 1, pageSize, "", "")
	require.NoError(t, err)
	page2, _, err := h.svc.ListCampaigns(ctx, 2, pageSize, "", "")
	require.NoError(t, err)

	require.Equal(t, 5, pagination1["total_count"])
	require.Equal(t, 3, pagination1["total_pages"])
	require.Len(t, page1, 2)
	require.Len(t, page2, 2)

	// descending order, no overlap between pages
	require.Greater(t, page1[0].ID, page1[1].ID)
	require.Greater(t, page2[0].ID, page2[1].ID)
	require.Greater(t, page1[1].ID, page2[0].ID)

	page3, pagination3, err := h.svc.ListCampaigns(ctx, 3, pageSize, "", "")
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Equal(t, 5, pagination3["total_count"])

	_, clamped, err := h.svc.ListCampaigns(ctx, 0, 500, "", "")
	require.NoError(t, err)
	require.Equal(t, 1, clamped["page"])
	require.Equal(t, 100, clamped["page_size"])
}

func TestCreateCampaignValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var val *appErrors.ErrValidation
	_, err := h.svc.CreateCampaign(ctx, service.CreateCampaignInput{Name: "  ", Channels: []model.Channel{model.ChannelEmail}})
	require.ErrorAs(t, err, &val)

	_, err = h.svc.CreateCampaign(ctx, service.CreateCampaignInput{Name: "x"})
	require.ErrorAs(t, err, &val)

	var uc *appErrors.ErrUnknownChannel
	_, err = h.svc.CreateCampaign(ctx, service.CreateCampaignInput{Name: "x", Channels: []model.Channel{"sms"}})
	require.ErrorAs(t, err, &uc)

	c, err := h.svc.CreateCampaign(ctx, service.CreateCampaignInput{
		Name:     "Launch",
		Channels: []model.Channel{model.ChannelWhatsApp, model.ChannelEmail, model.ChannelWhatsApp},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusDraft, c.Status)
	require.Equal(t, []model.Channel{model.ChannelWhatsApp, model.ChannelEmail}, c.Channels)
}

func TestExecuteFallsBackThroughChannels(t *testing.T) {
	wa := &fakeConnector{ch: model.ChannelWhatsApp, fail: true}
	email := &fakeConnector{ch: model.ChannelEmail}
	h := newHarness(t, nil, wa, email)

	c := h.campaign(t, []model.Channel{model.ChannelWhatsApp, model.ChannelEmail}, map[model.Channel]string{
		model.ChannelWhatsApp: "Hi {{recipient.firstName}}",
		model.ChannelEmail:    "Hello {{recipient.firstName}}",
	})
	r := &model.Recipient{Name: "Ann Lee", Email: "ann@x.io", Phone: "+15550001"}
	h.enroll(t, c.ID, r)

	res, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, model.ChannelEmail, res.Details[0].Channel)
	require.True(t, res.Completed)

	require.Equal(t, model.RecipientSent, h.store.Membership(c.ID, r.ID))
	attempts := attemptsFor(h.store, r.ID)
	require.Len(t, attempts, 2)
	require.Equal(t, model.ChannelWhatsApp, attempts[0].Channel)
	require.Equal(t, model.AttemptFailed, attempts[0].Status)
	require.Equal(t, model.ChannelEmail, attempts[1].Channel)
	require.Equal(t, model.AttemptSent, attempts[1].Status)
	require.Equal(t, model.StatusCompleted, h.store.Campaign(c.ID).Status)
}

func TestExecuteNoViableChannel(t *testing.T) {
	h := newHarness(t, nil, &fakeConnector{ch: model.ChannelEmail}, &fakeConnector{ch: model.ChannelWhatsApp})
	c := h.campaign(t, []model.Channel{model.ChannelEmail, model.ChannelWhatsApp}, map[model.Channel]string{
		model.ChannelEmail: "Hi",
	})
	r := &model.Recipient{Name: "Li", Platform: model.ChannelLinkedIn, PlatformID: "li-1"}
	h.enroll(t, c.ID, r)

	res, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, "No suitable channels available for recipient", res.Details[0].Error)
	require.Equal(t, model.RecipientFailed, h.store.Membership(c.ID, r.ID))
	require.Empty(t, attemptsFor(h.store, r.ID))
}

func TestExecuteEndToEnd(t *testing.T) {
	email := &fakeConnector{ch: model.ChannelEmail}
	h := newHarness(t, nil, email)
	h.svc.Engine.Analytics = analytics.NewTracker(h.store.Metrics())

	c := h.campaign(t, []model.Channel{model.ChannelEmail}, map[model.Channel]string{
		model.ChannelEmail: "Hi {{recipient.firstName}}",
	})
	r := &model.Recipient{Name: "A B", Email: "a@b.com"}
	h.enroll(t, c.ID, r)

	res, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)

	sent := email.messages()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "Hi A")
	require.NotContains(t, sent[0], "Hi A B")

	require.Equal(t, model.RecipientSent, h.store.Membership(c.ID, r.ID))
	attempts := attemptsFor(h.store, r.ID)
	require.Len(t, attempts, 1)
	require.Equal(t, model.AttemptSent, attempts[0].Status)

	row := h.store.Row(model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: c.ID})
	require.NotNil(t, row)
	require.Equal(t, 1, row.Counters.Sent)

	details, err := h.svc.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, details.Stats.TotalRecipients)
	require.Equal(t, 1, details.Stats.ReachedRecipients)
	require.Equal(t, model.StatusCompleted, details.Status)
}

func TestExecuteWithoutMessages(t *testing.T) {
	h := newHarness(t, nil, &fakeConnector{ch: model.ChannelEmail})
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, nil)
	h.enroll(t, c.ID, &model.Recipient{Email: "a@x.io"})

	_, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	var val *appErrors.ErrValidation
	require.ErrorAs(t, err, &val)
	require.Contains(t, err.Error(), "No messages found for campaign")
	require.Equal(t, model.StatusDraft, h.store.Campaign(c.ID).Status)
}

func TestExecuteCompletedCampaignIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	c := h.store.AddCampaign(&model.Campaign{Name: "done", Status: model.StatusCompleted, Channels: []model.Channel{model.ChannelEmail}})

	_, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	var tr *appErrors.ErrInvalidTransition
	require.ErrorAs(t, err, &tr)
}

func TestExecuteExpiredCampaignCompletes(t *testing.T) {
	h := newHarness(t, nil, &fakeConnector{ch: model.ChannelEmail})
	end := time.Now().Add(-time.Hour)
	c := h.store.AddCampaign(&model.Campaign{
		Name: "late", Status: model.StatusScheduled, Channels: []model.Channel{model.ChannelEmail},
		StartDate: end.Add(-time.Hour), EndDate: &end,
	})

	_, err := h.svc.ExecuteCampaignNow(context.Background(), c.ID)
	var tr *appErrors.ErrInvalidTransition
	require.ErrorAs(t, err, &tr)
	require.Equal(t, model.StatusCompleted, h.store.Campaign(c.ID).Status)
}

func TestExecuteBatchLeavesRestPending(t *testing.T) {
	h := newHarness(t, nil, &fakeConnector{ch: model.ChannelEmail})
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, map[model.Channel]string{model.ChannelEmail: "Hi"})
	h.enroll(t, c.ID,
		&model.Recipient{Email: "1@x.io"},
		&model.Recipient{Email: "2@x.io"},
		&model.Recipient{Email: "3@x.io"},
	)

	res, err := h.svc.ExecuteCampaignBatch(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.False(t, res.Completed)
	require.Equal(t, model.StatusInProgress, h.store.Campaign(c.ID).Status)

	res, err = h.svc.ExecuteCampaignBatch(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.True(t, res.Completed)
}

// cancellingConnector cancels the caller's context after its first send.
type cancellingConnector struct {
	fakeConnector
	cancel context.CancelFunc
}

func (c *cancellingConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts connector.SendOptions) model.DeliveryResult {
	res := c.fakeConnector.Send(ctx, msg, r, opts)
	c.cancel()
	return res
}

func TestExecuteSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	email := &cancellingConnector{fakeConnector: fakeConnector{ch: model.ChannelEmail}, cancel: cancel}
	h := newHarness(t, nil, email)
	h.svc.SendDelay = time.Millisecond
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, map[model.Channel]string{model.ChannelEmail: "Hi"})
	h.enroll(t, c.ID, &model.Recipient{Email: "1@x.io"}, &model.Recipient{Email: "2@x.io"}, &model.Recipient{Email: "3@x.io"})

	res, err := h.svc.ExecuteCampaignNow(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, res.Successful)
	require.Len(t, email.messages(), 3)
	require.Equal(t, model.StatusCompleted, h.store.Campaign(c.ID).Status)

	left, err := h.store.Recipients().CountPending(context.Background(), c.ID)
	require.NoError(t, err)
	require.Zero(t, left)
}

func TestExecuteRecipientsStopsOnShutdown(t *testing.T) {
	email := &fakeConnector{ch: model.ChannelEmail}
	h := newHarness(t, nil, email)
	h.svc.SendDelay = time.Hour
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, map[model.Channel]string{model.ChannelEmail: "Hi"})
	h.enroll(t, c.ID, &model.Recipient{Email: "1@x.io"}, &model.Recipient{Email: "2@x.io"})

	pending, err := h.store.Recipients().ListPending(context.Background(), c.ID, 0)
	require.NoError(t, err)
	campaign, err := h.store.Campaigns().GetByID(context.Background(), c.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := h.svc.ExecuteRecipients(ctx, campaign, pending)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, res.Successful)
	require.Len(t, email.messages(), 1)
	require.Equal(t, model.StatusInProgress, h.store.Campaign(c.ID).Status)
}

type recordingScheduler struct{ scheduled []*model.Campaign }

func (r *recordingScheduler) ScheduleCampaign(c *model.Campaign) error {
	r.scheduled = append(r.scheduled, c)
	return nil
}

func TestScheduleCampaign(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recordingScheduler{}
	h.svc.Scheduler = rec
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, nil)
	ctx := context.Background()

	var sch *appErrors.ErrInvalidSchedule
	_, err := h.svc.ScheduleCampaign(ctx, c.ID, nil)
	require.ErrorAs(t, err, &sch)
	_, err = h.svc.ScheduleCampaign(ctx, c.ID, &model.ScheduleOptions{CronExpression: "bogus"})
	require.ErrorAs(t, err, &sch)
	require.Empty(t, rec.scheduled)

	start := time.Now().Add(time.Hour)
	hour := 7
	got, err := h.svc.ScheduleCampaign(ctx, c.ID, &model.ScheduleOptions{
		Frequency: model.FrequencyDaily, Hour: &hour, StartDate: &start, BatchSize: 10,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusScheduled, got.Status)
	require.Equal(t, 10, got.ScheduleOptions.BatchSize)
	require.True(t, got.StartDate.Equal(start))
	require.Len(t, rec.scheduled, 1)
	require.Equal(t, c.ID, rec.scheduled[0].ID)
}

func TestAddRecipientsDeduplicates(t *testing.T) {
	h := newHarness(t, nil)
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, nil)
	ctx := context.Background()

	first := &model.Recipient{Name: "Ann", Email: "ann@x.io"}
	again := &model.Recipient{Name: "Ann Lee", Email: "ann@x.io", Phone: "+1555"}
	n, err := h.svc.AddRecipientsToCampaign(ctx, c.ID, []*model.Recipient{first, again})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, first.ID, again.ID)

	n, err = h.svc.AddRecipientsToCampaign(ctx, c.ID, []*model.Recipient{{Email: "ann@x.io"}})
	require.NoError(t, err)
	require.Zero(t, n)

	stored, err := h.store.Recipients().GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann Lee", stored.Name)
	require.Equal(t, "+1555", stored.Phone)

	details, err := h.svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, details.Stats.TotalRecipients)

	var val *appErrors.ErrValidation
	_, err = h.svc.AddRecipientsToCampaign(ctx, c.ID, []*model.Recipient{{Name: "nobody"}})
	require.ErrorAs(t, err, &val)

	var nf *appErrors.ErrCampaignNotFound
	_, err = h.svc.AddRecipientsToCampaign(ctx, 999, []*model.Recipient{first})
	require.ErrorAs(t, err, &nf)
}

func TestUpsertMessageRejectsForeignChannel(t *testing.T) {
	h := newHarness(t, nil)
	c := h.campaign(t, []model.Channel{model.ChannelEmail}, nil)

	var val *appErrors.ErrValidation
	_, err := h.svc.UpsertMessage(context.Background(), c.ID, model.ChannelTelegram, "Hi")
	require.ErrorAs(t, err, &val)

	_, err = h.svc.UpsertMessage(context.Background(), c.ID, model.ChannelEmail, "v1")
	require.NoError(t, err)
	_, err = h.svc.UpsertMessage(context.Background(), c.ID, model.ChannelEmail, "v2")
	require.NoError(t, err)
	msgs, err := h.svc.ListMessages(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "v2", msgs[0].Template)
}

func strPtr(s string) *string { return &s }

func TestRenderPreview(t *testing.T) {
	h := newHarness(t, nil)
	c := h.campaign(t, []model.Channel{model.ChannelLinkedIn}, map[model.Channel]string{
		model.ChannelLinkedIn: "Hi {{recipient.firstName}} from {{campaign.name}}",
	})
	r := &model.Recipient{Name: "Ann Lee", Platform: model.ChannelLinkedIn, PlatformID: "li-1"}
	h.enroll(t, c.ID, r)
	ctx := context.Background()

	p, err := h.svc.RenderPreview(ctx, c.ID, r.ID, model.ChannelLinkedIn, nil)
	require.NoError(t, err)
	require.Equal(t, "Hi Ann from C1", p.Message)
	require.True(t, p.Validation.IsValid)

	p, err = h.svc.RenderPreview(ctx, c.ID, r.ID, model.ChannelLinkedIn, strPtr(strings.Repeat("x", 1901)))
	require.NoError(t, err)
	// truncated to the LinkedIn limit by formatting
	require.Len(t, []rune(p.Message), 1900)

	var rnf *appErrors.ErrRecipientNotFound
	_, err = h.svc.RenderPreview(ctx, c.ID, 12345, model.ChannelLinkedIn, nil)
	require.ErrorAs(t, err, &rnf)

	var val *appErrors.ErrValidation
	_, err = h.svc.RenderPreview(ctx, c.ID, r.ID, model.ChannelEmail, nil)
	require.ErrorAs(t, err, &val)
}
