// internal/connector/connector.go
package connector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/unclebandit/outreach-backend/internal/lock"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// SendOptions carries per-send context to a connector.
type SendOptions struct {
	CampaignID *int
	SenderID   *int
	Subject    string
}

// Connector delivers a rendered message through one channel.
// Send never returns an error; failures are reported in the result.
type Connector interface {
	Channel() model.Channel
	Initialize(ctx context.Context) error
	Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult
}

// Deps are the collaborators shared by every connector.
type Deps struct {
	Configs repository.ChannelConfigRepositoryInterface
	Senders repository.SenderRepositoryInterface
	Logs    repository.ChannelLogRepositoryInterface
	HTTP    *http.Client
	Locker  lock.Locker
	Now     func() time.Time

	DefaultSenderName string
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DefaultSenderName == "" {
		d.DefaultSenderName = "Outreach Team"
	}
	return d
}

// Registry maps channels to connectors. It is built once at startup.
type Registry struct {
	connectors map[model.Channel]Connector
	order      []model.Channel
}

func NewRegistry(cs ...Connector) *Registry {
	r := &Registry{connectors: make(map[model.Channel]Connector, len(cs))}
	for _, c := range cs {
		if _, dup := r.connectors[c.Channel()]; !dup {
			r.order = append(r.order, c.Channel())
		}
		r.connectors[c.Channel()] = c
	}
	return r
}

func (r *Registry) Get(ch model.Channel) (Connector, bool) {
	c, ok := r.connectors[ch]
	return c, ok
}

func (r *Registry) Channels() []model.Channel {
	return append([]model.Channel(nil), r.order...)
}

// InitializeAll initializes every connector. A failing connector stays
// registered and retries initialization on its next send.
func (r *Registry) InitializeAll(ctx context.Context) map[model.Channel]error {
	failed := map[model.Channel]error{}
	for _, ch := range r.order {
		if err := r.connectors[ch].Initialize(ctx); err != nil {
			logx.L().Warnw("connector_init_failed", "channel", ch, "error", err)
			failed[ch] = err
			continue
		}
		logx.L().Infow("connector_initialized", "channel", ch)
	}
	return failed
}

// Close stops background work held by connectors.
func (r *Registry) Close() error {
	var errs []error
	for _, ch := range r.order {
		if c, ok := r.connectors[ch].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NewDefaultRegistry wires all six connectors over the same dependencies.
func NewDefaultRegistry(d Deps, tg TelegramOptions, defaultCountryCode string) *Registry {
	return NewRegistry(
		NewEmailConnector(d),
		NewWhatsAppConnector(d, defaultCountryCode),
		NewLinkedInConnector(d),
		NewFacebookConnector(d),
		NewInstagramConnector(d),
		NewTelegramConnector(d, tg),
	)
}
