// internal/connector/whatsapp.go
package connector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

const (
	ProviderTwilio           = "twilio"
	ProviderMessageBird      = "messagebird"
	ProviderWhatsAppBusiness = "whatsapp-business"

	defaultTwilioURL      = "https://api.twilio.com/2010-04-01"
	defaultMessageBirdURL = "https://conversations.messagebird.com/v1"
)

type whatsappSettings struct {
	Provider string `json:"provider"`

	AccountSID string `json:"accountSid"`
	AuthToken  string `json:"authToken"`
	FromNumber string `json:"fromNumber"`

	APIKey    string `json:"apiKey"`
	ChannelID string `json:"channelId"`

	PhoneNumberID string `json:"phoneNumberId"`
	AccessToken   string `json:"accessToken"`

	SenderName string `json:"senderName"`

	TwilioURL      string `json:"twilioUrl"`
	MessageBirdURL string `json:"messageBirdUrl"`
	GraphURL       string `json:"graphUrl"`
}

// WhatsAppConnector sends through one of several WhatsApp providers,
// picked by the provider flag of the active config.
type WhatsAppConnector struct {
	base
	countryCode string
	settings    whatsappSettings
}

func NewWhatsAppConnector(d Deps, defaultCountryCode string) *WhatsAppConnector {
	if defaultCountryCode == "" {
		defaultCountryCode = "1"
	}
	c := &WhatsAppConnector{countryCode: defaultCountryCode}
	c.init(model.ChannelWhatsApp, d)
	return c
}

func (c *WhatsAppConnector) Initialize(ctx context.Context) error {
	return c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s whatsappSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		switch s.Provider {
		case ProviderTwilio, ProviderMessageBird, ProviderWhatsAppBusiness:
		default:
			return fmt.Errorf("unsupported WhatsApp provider: %q", s.Provider)
		}
		if s.TwilioURL == "" {
			s.TwilioURL = defaultTwilioURL
		}
		if s.MessageBirdURL == "" {
			s.MessageBirdURL = defaultMessageBirdURL
		}
		if s.GraphURL == "" {
			s.GraphURL = defaultGraphURL
		}
		c.settings = s
		return nil
	})
}

// FormatPhone normalizes a phone number: digits only, prefixed with the
// country code when it is missing, with a leading '+'.
func FormatPhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return "+" + digits
}

func (c *WhatsAppConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.Phone
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.SenderName, PlatformID: c.fromAddress()})
	if r == nil || r.Phone == "" {
		return c.fail(ctx, rec, errors.New("recipient phone number is required"))
	}

	phone := FormatPhone(r.Phone, c.countryCode)
	rec.platformID = phone

	var (
		id, status string
		err        error
	)
	switch c.settings.Provider {
	case ProviderTwilio:
		id, status, err = c.sendTwilio(ctx, phone, msg)
	case ProviderMessageBird:
		id, status, err = c.sendMessageBird(ctx, phone, msg)
	default:
		id, status, err = c.sendBusiness(ctx, phone, msg)
	}
	if err != nil {
		return c.fail(ctx, rec, err)
	}
	res := c.succeed(ctx, rec, id)
	if status != "" {
		res.Status = status
	}
	return res
}

func (c *WhatsAppConnector) fromAddress() string {
	switch c.settings.Provider {
	case ProviderTwilio:
		return c.settings.FromNumber
	case ProviderMessageBird:
		return c.settings.ChannelID
	}
	return c.settings.PhoneNumberID
}

func (c *WhatsAppConnector) sendTwilio(ctx context.Context, phone, msg string) (string, string, error) {
	s := c.settings
	form := url.Values{
		"Body": {msg},
		"From": {"whatsapp:" + s.FromNumber},
		"To":   {"whatsapp:" + phone},
	}
	cred := base64.StdEncoding.EncodeToString([]byte(s.AccountSID + ":" + s.AuthToken))
	header := http.Header{"Authorization": {"Basic " + cred}}

	var out struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(s.TwilioURL, "/"), s.AccountSID)
	if err := c.postForm(ctx, endpoint, header, form, &out); err != nil {
		return "", "", err
	}
	return out.SID, out.Status, nil
}

func (c *WhatsAppConnector) sendMessageBird(ctx context.Context, phone, msg string) (string, string, error) {
	payload := map[string]any{
		"channelId": c.settings.ChannelID,
		"to":        phone,
		"type":      "text",
		"content":   map[string]string{"text": msg},
	}
	header := http.Header{"Authorization": {"AccessKey " + c.settings.APIKey}}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	endpoint := strings.TrimRight(c.settings.MessageBirdURL, "/") + "/conversations/start"
	if err := c.postJSON(ctx, endpoint, header, payload, &out); err != nil {
		return "", "", err
	}
	return out.ID, out.Status, nil
}

func (c *WhatsAppConnector) sendBusiness(ctx context.Context, phone, msg string) (string, string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(phone, "+"),
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": msg},
	}
	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	endpoint := strings.TrimRight(c.settings.GraphURL, "/") + "/" + c.settings.PhoneNumberID + "/messages"
	if err := c.postJSON(ctx, endpoint, bearer(c.settings.AccessToken), payload, &out); err != nil {
		return "", "", err
	}
	if len(out.Messages) == 0 {
		return "", "", errors.New("provider response contained no message id")
	}
	return out.Messages[0].ID, "sent", nil
}

var _ Connector = (*WhatsAppConnector)(nil)
