// internal/connector/facebook.go
package connector

import (
	"context"
	"errors"
	"net/url"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const defaultGraphURL = "https://graph.facebook.com/v13.0"

type facebookSettings struct {
	PageID    string `json:"pageId"`
	PageName  string `json:"pageName"`
	AppID     string `json:"appId"`
	AppSecret string `json:"appSecret"`
	GraphURL  string `json:"graphUrl"`
}

// FacebookConnector sends Messenger messages as a page.
type FacebookConnector struct {
	base
	settings facebookSettings
}

func NewFacebookConnector(d Deps) *FacebookConnector {
	c := &FacebookConnector{}
	c.init(model.ChannelFacebook, d)
	return c
}

func (c *FacebookConnector) Initialize(ctx context.Context) error {
	return c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s facebookSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		if s.PageID == "" {
			return errors.New("pageId is required")
		}
		if s.GraphURL == "" {
			s.GraphURL = defaultGraphURL
		}
		c.settings = s
		return c.loadToken(cfg, "pageAccessToken")
	})
}

func (c *FacebookConnector) oauth() oauth {
	return oauth{tokenKey: "pageAccessToken", exchange: c.exchange}
}

// exchange trades the page token for a long-lived one.
func (c *FacebookConnector) exchange(ctx context.Context, cur tokenState) (tokenState, error) {
	return graphExchange(ctx, &c.base, c.settings.GraphURL, c.settings.AppID, c.settings.AppSecret, cur)
}

func graphExchange(ctx context.Context, b *base, graphURL, appID, appSecret string, cur tokenState) (tokenState, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {cur.AccessToken},
	}
	if err := b.get(ctx, strings.TrimRight(graphURL, "/")+"/oauth/access_token", q, &out); err != nil {
		return tokenState{}, err
	}
	if out.AccessToken == "" {
		return tokenState{}, errors.New("token exchange returned no access_token")
	}
	return tokenState{AccessToken: out.AccessToken, RefreshToken: cur.RefreshToken, TokenExpiresAt: expiresAt(b.deps.Now(), out.ExpiresIn)}, nil
}

func (c *FacebookConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.PlatformID
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.PageName, PlatformID: c.settings.PageID})
	if r == nil || r.PlatformID == "" {
		return c.fail(ctx, rec, errors.New("recipient Facebook ID is required"))
	}

	token, err := c.freshToken(ctx, c.oauth())
	if err != nil {
		return c.fail(ctx, rec, err)
	}

	var out struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	payload := map[string]any{
		"recipient":      map[string]string{"id": r.PlatformID},
		"message":        map[string]string{"text": msg},
		"messaging_type": "MESSAGE_TAG",
		"tag":            "ACCOUNT_UPDATE",
	}
	endpoint := strings.TrimRight(c.settings.GraphURL, "/") + "/" + c.settings.PageID + "/messages"
	if err := c.postJSON(ctx, endpoint, bearer(token), payload, &out); err != nil {
		if appErrors.IsUnauthorized(err) {
			c.markExpired(ctx)
		}
		return c.fail(ctx, rec, err)
	}
	return c.succeed(ctx, rec, out.MessageID)
}

var _ Connector = (*FacebookConnector)(nil)
