// internal/analytics/tracker.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Sink accepts analytics events. Callers on the send path discard the
// returned error after it has been logged.
type Sink interface {
	Track(ctx context.Context, ev *model.AnalyticsEvent) error
}

// ErrNotApplied marks a Track call in which no step succeeded, so the
// event can be retried without double counting.
var ErrNotApplied = errors.New("analytics: event not applied")

// Tracker writes the event log and the four aggregate scopes.
type Tracker struct {
	Repo repository.MetricsRepositoryInterface
	Now  func() time.Time
}

func NewTracker(repo repository.MetricsRepositoryInterface) *Tracker {
	return &Tracker{Repo: repo, Now: time.Now}
}

// Keys lists the aggregate rows ev contributes to.
func Keys(ev *model.AnalyticsEvent) []model.MetricsKey {
	var keys []model.MetricsKey
	if ev.CampaignID != nil {
		keys = append(keys, model.MetricsKey{Scope: model.ScopeCampaign, CampaignID: *ev.CampaignID})
	}
	keys = append(keys, model.MetricsKey{Scope: model.ScopeChannel, Channel: ev.Channel})
	if ev.CampaignID != nil {
		keys = append(keys, model.MetricsKey{Scope: model.ScopeCampaignChannel, CampaignID: *ev.CampaignID, Channel: ev.Channel})
	}
	if ev.RecipientID != nil {
		keys = append(keys, model.MetricsKey{Scope: model.ScopeRecipient, RecipientID: *ev.RecipientID})
	}
	return keys
}

// Track records ev. Every step is attempted even when an earlier one
// fails; the joined error lists what went wrong.
func (t *Tracker) Track(ctx context.Context, ev *model.AnalyticsEvent) error {
	if ev == nil || !ev.EventType.Valid() {
		metrics.AnalyticsEventsTotal.WithLabelValues("invalid", "rejected").Inc()
		return errors.New("analytics: invalid event")
	}
	if !ev.Channel.Valid() {
		metrics.AnalyticsEventsTotal.WithLabelValues(string(ev.EventType), "rejected").Inc()
		return fmt.Errorf("analytics: unknown channel %q", ev.Channel)
	}
	now := t.now()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}

	var errs []error
	if err := t.Repo.InsertEvent(ctx, ev); err != nil {
		errs = append(errs, fmt.Errorf("event log: %w", err))
	}

	delta := ev.Delta()
	keys := Keys(ev)
	for _, key := range keys {
		received := 0
		if key.Scope == model.ScopeRecipient && ev.Received() {
			received = 1
		}
		if err := t.apply(ctx, key, delta, received, ev.CreatedAt); err != nil {
			errs = append(errs, fmt.Errorf("%s metrics: %w", key.Scope, err))
		}
	}

	if len(errs) == len(keys)+1 {
		errs = append([]error{ErrNotApplied}, errs...)
	}
	err := errors.Join(errs...)
	if err != nil {
		logx.L().Warnw("analytics_track_failed", "event_type", ev.EventType, "channel", ev.Channel, "error", err)
		metrics.AnalyticsEventsTotal.WithLabelValues(string(ev.EventType), "error").Inc()
		return err
	}
	metrics.AnalyticsEventsTotal.WithLabelValues(string(ev.EventType), "ok").Inc()
	return nil
}

// apply seeds the row on first sight and otherwise adds delta. A lost
// insert race falls through to the additive update.
func (t *Tracker) apply(ctx context.Context, key model.MetricsKey, delta model.Counters, received int, at time.Time) error {
	row, err := t.Repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if row == nil {
		inserted, err := t.Repo.Insert(ctx, &model.MetricsRow{
			Key:             key,
			Counters:        delta,
			TotalReceived:   received,
			LastInteraction: &at,
		})
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
	}
	return t.Repo.Increment(ctx, key, delta, received, at)
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

var _ Sink = (*Tracker)(nil)
