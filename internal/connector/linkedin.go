// internal/connector/linkedin.go
package connector

import (
	"context"
	"errors"
	"net/url"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const (
	defaultLinkedInAPI   = "https://api.linkedin.com/v2"
	defaultLinkedInOAuth = "https://www.linkedin.com/oauth/v2/accessToken"
)

type linkedinSettings struct {
	ProfileID      string `json:"profileId"`
	ProfileName    string `json:"profileName"`
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	UseOfficialAPI bool   `json:"useOfficialApi"`
	APIURL         string `json:"apiUrl"`
	OAuthURL       string `json:"oauthUrl"`
	AutomationURL  string `json:"automationUrl"`
	AutomationKey  string `json:"automationKey"`
}

// LinkedInConnector sends messages through the Messaging API or an automation service.
type LinkedInConnector struct {
	base
	settings linkedinSettings
}

func NewLinkedInConnector(d Deps) *LinkedInConnector {
	c := &LinkedInConnector{}
	c.init(model.ChannelLinkedIn, d)
	return c
}

func (c *LinkedInConnector) Initialize(ctx context.Context) error {
	return c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s linkedinSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		if s.APIURL == "" {
			s.APIURL = defaultLinkedInAPI
		}
		if s.OAuthURL == "" {
			s.OAuthURL = defaultLinkedInOAuth
		}
		c.settings = s
		return c.loadToken(cfg, "accessToken")
	})
}

// exchange uses the refresh_token grant; LinkedIn may rotate the refresh token.
func (c *LinkedInConnector) exchange(ctx context.Context, cur tokenState) (tokenState, error) {
	if cur.RefreshToken == "" {
		return tokenState{}, errors.New("no refresh token configured")
	}
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cur.RefreshToken},
		"client_id":     {c.settings.ClientID},
		"client_secret": {c.settings.ClientSecret},
	}
	if err := c.postForm(ctx, c.settings.OAuthURL, nil, form, &out); err != nil {
		return tokenState{}, err
	}
	next := tokenState{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken, TokenExpiresAt: expiresAt(c.deps.Now(), out.ExpiresIn)}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	return next, nil
}

func (c *LinkedInConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.PlatformID
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.ProfileName, PlatformID: c.settings.ProfileID})
	if r == nil || r.PlatformID == "" {
		return c.fail(ctx, rec, errors.New("recipient LinkedIn ID is required"))
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

	payload := map[string]any{
		"recipients": map[string]any{
			"values": []any{map[string]any{"person": map[string]string{"urn:li:person": r.PlatformID}}},
		},
		"body": map[string]any{
			"com.linkedin.ugc.MemberShareMediaContent": map[string]any{
				"shareMediaCategory": "NONE",
				"shareCommentary":    map[string]string{"text": msg},
			},
		},
	}
	header := bearer(token)
	header.Set("X-Restli-Protocol-Version", "2.0.0")

	var out struct {
		ID string `json:"id"`
	}
	endpoint := strings.TrimRight(c.settings.APIURL, "/") + "/messaging/conversations"
	if err := c.postJSON(ctx, endpoint, header, payload, &out); err != nil {
		if appErrors.IsUnauthorized(err) {
			c.markExpired(ctx)
		}
		return c.fail(ctx, rec, err)
	}
	return c.succeed(ctx, rec, out.ID)
}

var _ Connector = (*LinkedInConnector)(nil)
