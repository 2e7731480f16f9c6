// internal/connector/oauth.go
package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

const refreshWindow = 5 * time.Minute

// tokenState is the OAuth portion of a settings document. The access token
// lives under a channel-specific key (accessToken, pageAccessToken).
type tokenState struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt int64 // unix millis
	TokenExpired   bool
}

// due reports whether the token must be refreshed before use.
// A missing expiry counts as due.
func (t tokenState) due(now time.Time) bool {
	if t.TokenExpired {
		return true
	}
	return !now.Before(time.UnixMilli(t.TokenExpiresAt).Add(-refreshWindow))
}

func readToken(raw json.RawMessage, key string) (tokenState, error) {
	var doc struct {
		RefreshToken   string `json:"refreshToken"`
		TokenExpiresAt int64  `json:"tokenExpiresAt"`
		TokenExpired   bool   `json:"tokenExpired"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return tokenState{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return tokenState{}, err
	}
	t := tokenState{RefreshToken: doc.RefreshToken, TokenExpiresAt: doc.TokenExpiresAt, TokenExpired: doc.TokenExpired}
	if v, ok := fields[key]; ok {
		if err := json.Unmarshal(v, &t.AccessToken); err != nil {
			return tokenState{}, err
		}
	}
	return t, nil
}

func (t tokenState) patch(key string) map[string]any {
	p := map[string]any{
		key:              t.AccessToken,
		"tokenExpiresAt": t.TokenExpiresAt,
		"tokenExpired":   t.TokenExpired,
	}
	if t.RefreshToken != "" {
		p["refreshToken"] = t.RefreshToken
	}
	return p
}

// exchangeFunc trades the current token for a new one at the provider.
type exchangeFunc func(ctx context.Context, cur tokenState) (tokenState, error)

// oauth adds proactive refresh and 401 bookkeeping to a connector base.
type oauth struct {
	tokenKey string
	exchange exchangeFunc
}

func (b *base) currentToken() tokenState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *base) setToken(t tokenState) {
	b.mu.Lock()
	b.token = t
	b.mu.Unlock()
}

// freshToken returns a usable access token, refreshing it first when it is
// within the refresh window. Refreshes are serialized per channel through
// the Locker and re-check the stored token so concurrent holders do not
// exchange twice.
func (b *base) freshToken(ctx context.Context, o oauth) (string, error) {
	if t := b.currentToken(); !t.due(b.deps.Now()) {
		return t.AccessToken, nil
	}

	unlock, err := b.deps.Locker.Lock(ctx, "token-refresh:"+string(b.channel))
	if err != nil {
		return "", err
	}
	defer unlock()

	if cfg, err := b.deps.Configs.GetActive(ctx, b.channel); err == nil && cfg != nil {
		if stored, err := readToken(cfg.Settings, o.tokenKey); err == nil {
			b.mu.Lock()
			b.raw = append(json.RawMessage(nil), cfg.Settings...)
			b.token = stored
			b.mu.Unlock()
			if !stored.due(b.deps.Now()) {
				return stored.AccessToken, nil
			}
		}
	}

	next, err := o.exchange(ctx, b.currentToken())
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(string(b.channel), "error").Inc()
		return "", err
	}
	next.TokenExpired = false
	b.setToken(next)
	if err := b.persist(ctx, next.patch(o.tokenKey)); err != nil {
		logx.L().Errorw("token_persist_failed", "channel", b.channel, "error", err)
	}
	metrics.TokenRefreshTotal.WithLabelValues(string(b.channel), "ok").Inc()
	logx.L().Infow("token_refreshed", "channel", b.channel, "expires_at", time.UnixMilli(next.TokenExpiresAt))
	return next.AccessToken, nil
}

// markExpired records a provider 401 so the next send refreshes first.
func (b *base) markExpired(ctx context.Context) {
	b.mu.Lock()
	b.token.TokenExpired = true
	b.mu.Unlock()
	if err := b.persist(ctx, map[string]any{"tokenExpired": true}); err != nil {
		logx.L().Errorw("token_expired_persist_failed", "channel", b.channel, "error", err)
	}
}

// loadToken is used from an ensure callback, where b.mu is already held.
func (b *base) loadToken(cfg *model.ChannelConfig, key string) error {
	t, err := readToken(cfg.Settings, key)
	if err != nil {
		return err
	}
	b.token = t
	return nil
}

// expiresAt converts a provider expires_in (seconds) into unix millis.
func expiresAt(now time.Time, expiresIn int64) int64 {
	return now.Add(time.Duration(expiresIn) * time.Second).UnixMilli()
}
