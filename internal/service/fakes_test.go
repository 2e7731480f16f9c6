package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/connector"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository/repotest"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// fakeConnector records what it was asked to send.
type fakeConnector struct {
	ch     model.Channel
	fail   bool
	panics bool

	mu   sync.Mutex
	sent []string
}

func (f *fakeConnector) Channel() model.Channel             { return f.ch }
func (f *fakeConnector) Initialize(ctx context.Context) error { return nil }

func (f *fakeConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts connector.SendOptions) model.DeliveryResult {
	if f.panics {
		panic("provider exploded")
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.fail {
		return model.Failed("Failed to send "+string(f.ch)+" message", "provider said no")
	}
	return model.Delivered(string(f.ch)+"-msg", "sent")
}

func (f *fakeConnector) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type harness struct {
	store *repotest.Store
	svc   *service.CampaignService
}

func newHarness(t *testing.T, sink analytics.Sink, conns ...connector.Connector) *harness {
	t.Helper()
	store := repotest.NewStore()
	engine := service.NewOutreachEngine(connector.NewRegistry(conns...), store.Attempts(), sink)
	return &harness{
		store: store,
		svc: &service.CampaignService{
			CampaignRepo:  store.Campaigns(),
			RecipientRepo: store.Recipients(),
			MessageRepo:   store.Messages(),
			Engine:        engine,
		},
	}
}

func (h *harness) campaign(t *testing.T, channels []model.Channel, templates map[model.Channel]string) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	c, err := h.svc.CreateCampaign(ctx, service.CreateCampaignInput{Name: "C1", Channels: channels})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	for ch, tmpl := range templates {
		if _, err := h.svc.UpsertMessage(ctx, c.ID, ch, tmpl); err != nil {
			t.Fatalf("upsert message: %v", err)
		}
	}
	return c
}

func (h *harness) enroll(t *testing.T, campaignID int, rs ...*model.Recipient) {
	t.Helper()
	if _, err := h.svc.AddRecipientsToCampaign(context.Background(), campaignID, rs); err != nil {
		t.Fatalf("enroll: %v", err)
	}
}

func attemptsFor(store *repotest.Store, recipientID int) []*model.OutreachAttempt {
	var out []*model.OutreachAttempt
	for _, a := range store.AttemptLog() {
		if a.RecipientID != nil && *a.RecipientID == recipientID {
			out = append(out, a)
		}
	}
	return out
}
