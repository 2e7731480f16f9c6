// internal/connector/base.go
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

var displayNames = map[model.Channel]string{
	model.ChannelEmail:     "email",
	model.ChannelWhatsApp:  "WhatsApp",
	model.ChannelLinkedIn:  "LinkedIn",
	model.ChannelFacebook:  "Facebook",
	model.ChannelInstagram: "Instagram",
	model.ChannelTelegram:  "Telegram",
}

type senderInfo struct {
	ID         string
	Name       string
	PlatformID string
}

// base holds the state every connector instance owns: its active settings
// document, the OAuth token (if any) and the shared collaborators.
type base struct {
	channel model.Channel
	deps    Deps

	mu    sync.Mutex
	raw   json.RawMessage
	token tokenState
	ready bool
}

func (b *base) init(ch model.Channel, d Deps) {
	b.channel = ch
	b.deps = d.withDefaults()
}

func (b *base) Channel() model.Channel { return b.channel }

// ensure loads the active config once and hands it to apply.
func (b *base) ensure(ctx context.Context, apply func(cfg *model.ChannelConfig) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if b.deps.Configs == nil {
		return appErrors.NewConnectorNotInitialized(string(b.channel), "no configuration store")
	}
	cfg, err := b.deps.Configs.GetActive(ctx, b.channel)
	if err != nil {
		return appErrors.NewConnectorNotInitialized(string(b.channel), err.Error())
	}
	if cfg == nil {
		return appErrors.NewConnectorNotInitialized(string(b.channel), "no active configuration")
	}
	if err := apply(cfg); err != nil {
		return appErrors.NewConnectorNotInitialized(string(b.channel), "invalid settings: "+err.Error())
	}
	b.raw = append(json.RawMessage(nil), cfg.Settings...)
	b.ready = true
	return nil
}

// persist merges patch into the settings document and writes it back.
func (b *base) persist(ctx context.Context, patch map[string]any) error {
	b.mu.Lock()
	doc := map[string]any{}
	if len(b.raw) > 0 {
		if err := json.Unmarshal(b.raw, &doc); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	for k, v := range patch {
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.raw = raw
	b.mu.Unlock()

	return b.deps.Configs.SaveSettings(ctx, b.channel, raw)
}

// resolveSender picks the identity to send as: explicit id, store default,
// then the config-derived fallback, then the last-resort name.
func (b *base) resolveSender(ctx context.Context, opts SendOptions, fromConfig senderInfo) senderInfo {
	if b.deps.Senders != nil {
		if opts.SenderID != nil {
			s, err := b.deps.Senders.GetByID(ctx, b.channel, *opts.SenderID)
			if err != nil {
				logx.L().Warnw("sender_lookup_failed", "channel", b.channel, "sender_id", *opts.SenderID, "error", err)
			} else if s != nil {
				return senderInfo{ID: strconv.Itoa(s.ID), Name: s.Name, PlatformID: s.Address}
			}
		}
		s, err := b.deps.Senders.GetDefault(ctx, b.channel)
		if err != nil {
			logx.L().Warnw("default_sender_lookup_failed", "channel", b.channel, "error", err)
		} else if s != nil {
			return senderInfo{ID: strconv.Itoa(s.ID), Name: s.Name, PlatformID: s.Address}
		}
	}
	if fromConfig.Name != "" || fromConfig.PlatformID != "" {
		if fromConfig.Name == "" {
			fromConfig.Name = b.deps.DefaultSenderName
		}
		return fromConfig
	}
	return senderInfo{Name: b.deps.DefaultSenderName}
}

type sendRecord struct {
	recipient  *model.Recipient
	platformID string
	sender     senderInfo
	opts       SendOptions
}

func (b *base) writeLog(ctx context.Context, rec sendRecord, status, messageID, errDetail string) {
	if b.deps.Logs == nil {
		return
	}
	entry := &model.ChannelLog{
		Channel:             b.channel,
		PlatformRecipientID: rec.platformID,
		SenderID:            rec.sender.ID,
		SenderName:          rec.sender.Name,
		MessageID:           messageID,
		CampaignID:          rec.opts.CampaignID,
		Status:              status,
		ErrorDetails:        errDetail,
		SentAt:              b.deps.Now(),
	}
	if rec.recipient != nil {
		entry.RecipientID = rec.recipient.ID
	}
	if err := b.deps.Logs.Insert(ctx, entry); err != nil {
		logx.L().Errorw("channel_log_failed", "channel", b.channel, "error", err)
	}
}

func (b *base) succeed(ctx context.Context, rec sendRecord, messageID string) model.DeliveryResult {
	b.writeLog(ctx, rec, "sent", messageID, "")
	res := model.Delivered(messageID, "sent")
	res.SenderID = rec.sender.ID
	return res
}

func (b *base) fail(ctx context.Context, rec sendRecord, err error) model.DeliveryResult {
	logx.L().Errorw("connector_send_failed", "channel", b.channel, "error", err)
	b.writeLog(ctx, rec, "failed", "", err.Error())
	res := model.Failed(fmt.Sprintf("Failed to send %s message", displayNames[b.channel]), err.Error())
	res.Status = "failed"
	res.SenderID = rec.sender.ID
	return res
}

const maxProviderBody = 1 << 20

// do executes req and decodes a 2xx JSON body into out. Other statuses
// become *appErrors.ErrProvider.
func (b *base) do(req *http.Request, out any) error {
	resp, err := b.deps.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(body))
		if len(text) > 512 {
			text = text[:512]
		}
		return appErrors.NewProviderError(string(b.channel), resp.StatusCode, text)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (b *base) postJSON(ctx context.Context, endpoint string, header http.Header, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *base) postForm(ctx context.Context, endpoint string, header http.Header, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req, out)
}

func (b *base) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}
