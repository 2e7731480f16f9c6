// internal/service/engine.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/connector"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/message"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// ConnectorResolver is satisfied by *connector.Registry.
type ConnectorResolver interface {
	Get(ch model.Channel) (connector.Connector, bool)
}

// OutreachEngine renders, validates and dispatches single messages.
type OutreachEngine struct {
	Personalizer *message.Personalizer
	Validator    *message.Validator
	Connectors   ConnectorResolver
	Attempts     repository.AttemptRepositoryInterface
	Analytics    analytics.Sink
	Now          func() time.Time
}

func NewOutreachEngine(connectors ConnectorResolver, attempts repository.AttemptRepositoryInterface, sink analytics.Sink) *OutreachEngine {
	return &OutreachEngine{
		Personalizer: message.NewPersonalizer(nil),
		Validator:    message.NewValidator(),
		Connectors:   connectors,
		Attempts:     attempts,
		Analytics:    sink,
		Now:          time.Now,
	}
}

// SendMessage never returns an error. Every failure, including a panic
// inside a collaborator, comes back as an unsuccessful DeliveryResult.
func (e *OutreachEngine) SendMessage(ctx context.Context, tmpl string, ch model.Channel, r *model.Recipient, c *model.Campaign) (res model.DeliveryResult) {
	start := time.Now()
	outcome := "failed"
	defer func() {
		if rec := recover(); rec != nil {
			logx.L().Errorw("send_message_panic", "channel", ch, "panic", rec)
			res = model.Failed("Failed to send message", fmt.Sprint(rec))
			outcome = "failed"
		}
		metrics.SendsTotal.WithLabelValues(string(ch), outcome).Inc()
		metrics.SendDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
	}()

	if r == nil {
		return model.Failed("Failed to send message", "recipient is required")
	}

	rendered := e.Personalizer.Render(ctx, tmpl, r, c, ch)

	if v := e.Validator.Validate(rendered, ch); !v.IsValid {
		outcome = "rejected"
		logx.L().Warnw("message_validation_failed", "channel", ch, "recipient_id", r.ID, "errors", v.Errors)
		return model.Failed("Message validation failed", v.Errors...)
	}

	conn, ok := e.Connectors.Get(ch)
	if !ok {
		outcome = "rejected"
		logx.L().Warnw("unknown_channel", "channel", ch)
		return model.Failed(fmt.Sprintf("No connector available for channel: %s", ch))
	}

	opts := connector.SendOptions{}
	if c != nil {
		id := c.ID
		opts.CampaignID = &id
		opts.Subject = c.Name
	}
	res = conn.Send(ctx, rendered, r, opts)
	if res.Success {
		outcome = "sent"
	}

	_ = e.logAttempt(ctx, ch, r, opts.CampaignID, rendered, res)
	_ = e.track(ctx, ch, r, opts.CampaignID, res)
	return res
}

func (e *OutreachEngine) logAttempt(ctx context.Context, ch model.Channel, r *model.Recipient, campaignID *int, content string, res model.DeliveryResult) error {
	if e.Attempts == nil {
		return nil
	}
	a := &model.OutreachAttempt{
		Channel:        ch,
		RecipientID:    storedID(r),
		CampaignID:     campaignID,
		MessageID:      res.MessageID,
		Status:         model.AttemptSent,
		SentAt:         e.now(),
		MessageContent: content,
	}
	if !res.Success {
		a.Status = model.AttemptFailed
		a.ErrorDetails = errorText(res)
	}
	if err := e.Attempts.Insert(ctx, a); err != nil {
		logx.L().Errorw("attempt_log_failed", "channel", ch, "recipient_id", r.ID, "error", err)
		return err
	}
	return nil
}

func (e *OutreachEngine) track(ctx context.Context, ch model.Channel, r *model.Recipient, campaignID *int, res model.DeliveryResult) error {
	if e.Analytics == nil {
		return nil
	}
	ev := &model.AnalyticsEvent{
		EventType:  model.EventSend,
		Channel:    ch,
		CampaignID: campaignID,
		SenderID:   res.SenderID,
		MessageID:  res.MessageID,
		Success:    res.Success,
		CreatedAt:  e.now(),
	}
	ev.RecipientID = storedID(r)
	if res.Status != "" {
		ev.Metadata = map[string]any{"status": res.Status}
	}
	if err := e.Analytics.Track(ctx, ev); err != nil {
		logx.L().Warnw("analytics_dropped", "channel", ch, "recipient_id", r.ID, "error", err)
		return err
	}
	return nil
}

// storedID is nil for ad-hoc recipients that have no row.
func storedID(r *model.Recipient) *int {
	if r == nil || r.ID == 0 {
		return nil
	}
	id := r.ID
	return &id
}

func (e *OutreachEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func errorText(res model.DeliveryResult) string {
	if len(res.Details) == 0 {
		return res.Error
	}
	return res.Error + ": " + strings.Join(res.Details, "; ")
}
