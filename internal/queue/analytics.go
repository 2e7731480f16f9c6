// internal/queue/analytics.go
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Publisher is an analytics.Sink that defers tracking to a queue consumer.
type Publisher struct {
	Queue Queue
	Topic string
}

func (p *Publisher) Track(ctx context.Context, ev *model.AnalyticsEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.Queue.Publish(ctx, p.Topic, body); err != nil {
		logx.L().Warnw("analytics_publish_failed", "topic", p.Topic, "event_type", ev.EventType, "error", err)
		return err
	}
	return nil
}

var _ analytics.Sink = (*Publisher)(nil)

// StartAnalyticsSubscriber applies queued events with sink. Only events
// that left no trace are retried; partial failures are logged and acked.
func StartAnalyticsSubscriber(q Queue, topic string, sink analytics.Sink) error {
	return q.Subscribe(topic, func(ctx context.Context, payload []byte) error {
		var ev model.AnalyticsEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			logx.L().Warnw("analytics_event_unmarshal_error", "error", err)
			return nil
		}
		err := sink.Track(ctx, &ev)
		if errors.Is(err, analytics.ErrNotApplied) {
			return err
		}
		return nil
	})
}
