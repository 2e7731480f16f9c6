// internal/message/personalizer.go
package message

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/model"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Enhancer rewrites a substituted message. Errors are not fatal to rendering.
type Enhancer interface {
	Enhance(ctx context.Context, msg string, in EnhanceInput) (string, error)
}

type EnhanceInput struct {
	Recipient *model.Recipient
	Campaign  *model.Campaign
	Channel   model.Channel
}

// Personalizer renders campaign templates for a recipient and channel.
type Personalizer struct {
	Enhancer Enhancer
	Now      func() time.Time
	Location *time.Location
}

func NewPersonalizer(enh Enhancer) *Personalizer {
	if enh == nil {
		enh = RuleEnhancer{}
	}
	return &Personalizer{Enhancer: enh, Now: time.Now, Location: time.Local}
}

// Render substitutes variables, optionally enhances, then formats for ch.
func (p *Personalizer) Render(ctx context.Context, tmpl string, r *model.Recipient, c *model.Campaign, ch model.Channel) string {
	msg := p.Substitute(tmpl, r, c)

	if c != nil && c.UseEnhancement && p.Enhancer != nil {
		enhanced, err := p.enhance(ctx, msg, EnhanceInput{Recipient: r, Campaign: c, Channel: ch})
		if err != nil {
			logx.L().Warnw("message_enhance_failed", "channel", ch, "error", err)
		} else if strings.TrimSpace(enhanced) != "" {
			msg = enhanced
		}
	}

	return FormatForChannel(msg, ch)
}

func (p *Personalizer) enhance(ctx context.Context, msg string, in EnhanceInput) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("enhancer panic: %v", rec)
		}
	}()
	return p.Enhancer.Enhance(ctx, msg, in)
}

// Substitute replaces known placeholders. Unknown ones are left as written.
func (p *Personalizer) Substitute(tmpl string, r *model.Recipient, c *model.Campaign) string {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	if p.Location != nil {
		now = now.In(p.Location)
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := lookup(key, r, c, now); ok {
			return v
		}
		return m
	})
}

func lookup(key string, r *model.Recipient, c *model.Campaign, now time.Time) (string, bool) {
	switch key {
	case "date":
		return now.Format("1/2/2006"), true
	case "time":
		return now.Format("3:04:05 PM"), true
	}

	if rest, ok := strings.CutPrefix(key, "recipient."); ok {
		if r == nil {
			return "", false
		}
		switch rest {
		case "name":
			return r.Name, true
		case "firstName":
			return FirstName(r.Name), true
		case "email":
			return r.Email, true
		case "phone":
			return r.Phone, true
		case "company", "position":
			return r.Meta(rest), true
		}
		if mk, ok := strings.CutPrefix(rest, "metadata."); ok {
			if _, present := r.Metadata[mk]; present {
				return r.Meta(mk), true
			}
		}
		return "", false
	}

	if rest, ok := strings.CutPrefix(key, "campaign."); ok {
		if c == nil {
			return "", false
		}
		switch rest {
		case "name":
			return c.Name, true
		case "company":
			return c.Company, true
		case "website":
			return c.Website, true
		case "phone":
			return c.ContactPhone, true
		case "email":
			return c.ContactEmail, true
		}
	}
	return "", false
}

// FirstName returns the part of name before the first whitespace.
func FirstName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		return name[:i]
	}
	return name
}

// FormatForChannel applies channel presentation rules.
func FormatForChannel(msg string, ch model.Channel) string {
	switch ch {
	case model.ChannelEmail:
		msg = blankLinesRe.ReplaceAllString(msg, "\n\n")
		msg = strings.ReplaceAll(msg, "\n", "<br>")
		return `<div style="font-family: Arial, sans-serif; line-height: 1.6;">` + msg + `</div>`
	case model.ChannelLinkedIn:
		msg = truncate(msg, LinkedInLimit)
	case model.ChannelInstagram:
		msg = truncate(msg, InstagramLimit)
	}
	return blankLinesRe.ReplaceAllString(msg, "\n\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
