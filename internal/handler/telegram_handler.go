// internal/handler/telegram_handler.go
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/connector"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateReceiver is satisfied by *connector.TelegramConnector.
type UpdateReceiver interface {
	WebhookSecret() string
	HandleUpdate(ctx context.Context, u connector.TelegramUpdate)
}

type TelegramWebhookHandler struct {
	Receiver UpdateReceiver
}

func (h *TelegramWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// An unset secret rejects everything rather than accepting anyone.
	secret := h.Receiver.WebhookSecret()
	got := r.Header.Get(telegramSecretHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var u connector.TelegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	h.Receiver.HandleUpdate(r.Context(), u)
	w.WriteHeader(http.StatusOK)
}

// ReplyTracker turns inbound Telegram messages from known recipients into
// reply events.
type ReplyTracker struct {
	Recipients repository.RecipientRepositoryInterface
	Sink       analytics.Sink
}

func (t *ReplyTracker) OnTelegramUpdate(ctx context.Context, u connector.TelegramUpdate) {
	if u.Message == nil {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	r, err := t.Recipients.FindByPlatform(ctx, model.ChannelTelegram, chatID)
	if err != nil {
		logx.L().Warnw("telegram_reply_lookup_failed", "chat_id", chatID, "error", err)
		return
	}
	if r == nil {
		logx.L().Debugw("telegram_update_unknown_chat", "chat_id", chatID)
		return
	}

	id := r.ID
	ev := &model.AnalyticsEvent{
		EventType:   model.EventReply,
		Channel:     model.ChannelTelegram,
		RecipientID: &id,
		MessageID:   strconv.FormatInt(u.Message.MessageID, 10),
		Success:     true,
		Metadata:    map[string]any{"update_id": u.UpdateID},
		CreatedAt:   time.Unix(u.Message.Date, 0),
	}
	if u.Message.Date == 0 {
		ev.CreatedAt = time.Now()
	}
	if err := t.Sink.Track(ctx, ev); err != nil {
		logx.L().Warnw("telegram_reply_track_failed", "recipient_id", id, "error", err)
	}
}
