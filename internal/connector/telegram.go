// internal/connector/telegram.go
package connector

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramMode string

const (
	TelegramPolling TelegramMode = "polling"
	TelegramWebhook TelegramMode = "webhook"
)

// TelegramOptions configures inbound update handling.
type TelegramOptions struct {
	// WebhookURL switches the connector to webhook mode when the stored
	// config does not choose a mode itself.
	WebhookURL  string
	PollTimeout time.Duration
	// OnUpdate receives every inbound update, polled or pushed.
	OnUpdate func(ctx context.Context, u TelegramUpdate)
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type TelegramChat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username"`
}

type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from"`
	Chat      TelegramChat  `json:"chat"`
	Date      int64         `json:"date"`
	Text      string        `json:"text"`
}

type TelegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message"`
}

type telegramSettings struct {
	BotToken      string       `json:"botToken"`
	BotName       string       `json:"botName"`
	Mode          TelegramMode `json:"mode"`
	WebhookURL    string       `json:"webhookUrl"`
	WebhookSecret string       `json:"webhookSecret"`
	APIURL        string       `json:"apiUrl"`
}

// telegramResponse is the Bot API envelope.
type telegramResponse[T any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

// TelegramConnector sends through the Bot API and receives updates by
// long polling or webhook.
type TelegramConnector struct {
	base
	opts     TelegramOptions
	settings telegramSettings

	runMu   sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	offset  int64
}

func NewTelegramConnector(d Deps, opts TelegramOptions) *TelegramConnector {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	c := &TelegramConnector{opts: opts}
	c.init(model.ChannelTelegram, d)
	return c
}

func (c *TelegramConnector) Initialize(ctx context.Context) error {
	err := c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s telegramSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		if s.BotToken == "" {
			return errors.New("botToken is required")
		}
		if s.APIURL == "" {
			s.APIURL = defaultTelegramAPI
		}
		if s.WebhookURL == "" {
			s.WebhookURL = c.opts.WebhookURL
		}
		if s.Mode == "" {
			s.Mode = TelegramPolling
			if s.WebhookURL != "" {
				s.Mode = TelegramWebhook
			}
		}
		c.settings = s
		return nil
	})
	if err != nil {
		return err
	}
	return c.startReceiving(ctx)
}

// Mode reports the receive mode chosen at initialization.
func (c *TelegramConnector) Mode() TelegramMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Mode
}

// WebhookSecret is the secret Telegram echoes on webhook calls.
func (c *TelegramConnector) WebhookSecret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.WebhookSecret
}

func (c *TelegramConnector) method(name string) string {
	return strings.TrimRight(c.settings.APIURL, "/") + "/bot" + c.settings.BotToken + "/" + name
}

func (c *TelegramConnector) startReceiving(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.started || c.closed {
		return nil
	}

	if c.settings.Mode == TelegramWebhook {
		secret, err := c.ensureWebhookSecret(ctx)
		if err != nil {
			return err
		}
		body := map[string]any{
			"url":             c.settings.WebhookURL,
			"allowed_updates": []string{"message"},
			"secret_token":    secret,
		}
		var out telegramResponse[bool]
		if err := c.postJSON(ctx, c.method("setWebhook"), nil, body, &out); err != nil {
			return err
		}
		if !out.OK {
			return errors.New("setWebhook: " + out.Description)
		}
		logx.L().Infow("telegram_webhook_set", "url", c.settings.WebhookURL)
		c.started = true
		return nil
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.poll(pollCtx, c.done)
	logx.L().Infow("telegram_polling_started", "timeout", c.opts.PollTimeout)
	return nil
}

// ensureWebhookSecret generates and stores a secret when the config has
// none, so the webhook endpoint never runs unauthenticated.
func (c *TelegramConnector) ensureWebhookSecret(ctx context.Context) (string, error) {
	if secret := c.WebhookSecret(); secret != "" {
		return secret, nil
	}
	secret := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := c.persist(ctx, map[string]any{"webhookSecret": secret}); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.settings.WebhookSecret = secret
	c.mu.Unlock()
	logx.L().Infow("telegram_webhook_secret_generated")
	return secret, nil
}

func (c *TelegramConnector) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		updates, err := c.getUpdates(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logx.L().Warnw("telegram_poll_failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			c.HandleUpdate(ctx, u)
		}
	}
}

func (c *TelegramConnector) getUpdates(ctx context.Context) ([]TelegramUpdate, error) {
	c.runMu.Lock()
	offset := c.offset
	c.runMu.Unlock()

	q := url.Values{"timeout": {strconv.Itoa(int(c.opts.PollTimeout / time.Second))}}
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	var out telegramResponse[[]TelegramUpdate]
	if err := c.get(ctx, c.method("getUpdates"), q, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, errors.New("getUpdates: " + out.Description)
	}
	return out.Result, nil
}

// HandleUpdate advances the polling offset and hands u to OnUpdate.
// The webhook handler calls it for pushed updates.
func (c *TelegramConnector) HandleUpdate(ctx context.Context, u TelegramUpdate) {
	c.runMu.Lock()
	if u.UpdateID >= c.offset {
		c.offset = u.UpdateID + 1
	}
	c.runMu.Unlock()

	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(ctx, u)
	}
}

// Close stops polling for good. It is safe to call more than once.
func (c *TelegramConnector) Close() error {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.closed = true
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (c *TelegramConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.PlatformID
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.BotName, PlatformID: c.settings.BotName})
	if r == nil || r.PlatformID == "" {
		return c.fail(ctx, rec, errors.New("recipient Telegram chat ID is required"))
	}

	body := map[string]any{
		"chat_id":    r.PlatformID,
		"text":       msg,
		"parse_mode": "Markdown",
	}
	var out telegramResponse[TelegramMessage]
	if err := c.postJSON(ctx, c.method("sendMessage"), nil, body, &out); err != nil {
		return c.fail(ctx, rec, err)
	}
	if !out.OK {
		return c.fail(ctx, rec, errors.New(out.Description))
	}
	return c.succeed(ctx, rec, strconv.FormatInt(out.Result.MessageID, 10))
}

var _ Connector = (*TelegramConnector)(nil)
