// internal/message/validator.go
package message

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Result is the outcome of validating a rendered message for one channel.
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

const (
	LinkedInLimit  = 1900
	InstagramLimit = 1000
	TelegramLimit  = 4096
	FacebookLimit  = 20000
	WhatsAppLimit  = 65000
)

var (
	linkRe       = regexp.MustCompile(`https?://[^\s]+`)
	hashtagRe    = regexp.MustCompile(`#[a-zA-Z0-9_]+`)
	openTagRe    = regexp.MustCompile(`<[^/][^>]*>`)
	closeTagRe   = regexp.MustCompile(`</[^>]*>`)
	spamTriggers = []string{"FREE", "GUARANTEED", "ACT NOW", "LIMITED TIME"}

	casualPhrases = []string{"hey there", "what's up", "sup", "yo", "wanna"}
	casualRes     = compileWordMatchers(casualPhrases)
)

func compileWordMatchers(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
	}
	return out
}

// Validator checks rendered messages against per-channel rules.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate never fails; problems are reported in the Result.
func (v *Validator) Validate(msg string, ch model.Channel) Result {
	if strings.TrimSpace(msg) == "" {
		return Result{IsValid: false, Errors: []string{"Message cannot be empty"}}
	}

	var errs []string
	switch model.Channel(strings.ToLower(string(ch))) {
	case model.ChannelEmail:
		errs = validateEmail(msg)
	case model.ChannelWhatsApp:
		errs = validateWhatsApp(msg)
	case model.ChannelLinkedIn:
		errs = validateLinkedIn(msg)
	case model.ChannelFacebook:
		errs = validateFacebook(msg)
	case model.ChannelInstagram:
		errs = validateInstagram(msg)
	case model.ChannelTelegram:
		errs = validateTelegram(msg)
	}
	if errs == nil {
		errs = []string{}
	}
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

func validateEmail(msg string) []string {
	var errs []string
	for _, w := range spamTriggers {
		if strings.Contains(msg, w) {
			errs = append(errs, "Message contains potential spam trigger words (all caps)")
			break
		}
	}
	if strings.Count(msg, "!") > 3 {
		errs = append(errs, "Message contains too many exclamation marks")
	}
	if len(linkRe.FindAllString(msg, -1)) > 3 {
		errs = append(errs, "Message contains too many links")
	}
	if strings.Contains(msg, "<html") || strings.Contains(msg, "<body") {
		open := len(openTagRe.FindAllString(msg, -1))
		closed := len(closeTagRe.FindAllString(msg, -1))
		if open != closed {
			errs = append(errs, "HTML in message has unclosed tags")
		}
	}
	return errs
}

func validateWhatsApp(msg string) []string {
	var errs []string
	if utf8.RuneCountInString(msg) > WhatsAppLimit {
		errs = append(errs, fmt.Sprintf("Message exceeds WhatsApp character limit (%d)", WhatsAppLimit))
	}
	if countEmojis(msg) > 15 {
		errs = append(errs, "Message contains too many emojis")
	}
	return errs
}

func validateLinkedIn(msg string) []string {
	var errs []string
	if n := utf8.RuneCountInString(msg); n > LinkedInLimit {
		errs = append(errs, fmt.Sprintf("Message exceeds LinkedIn character limit (%d). Current length: %d", LinkedInLimit, n))
	}
	if len(hashtagRe.FindAllString(msg, -1)) > 5 {
		errs = append(errs, "Message contains too many hashtags for LinkedIn")
	}
	if len(linkRe.FindAllString(msg, -1)) > 2 {
		errs = append(errs, "Message contains too many links for LinkedIn")
	}
	for i, re := range casualRes {
		if re.MatchString(msg) {
			errs = append(errs, fmt.Sprintf("Message contains casual language (%q) which may be inappropriate for LinkedIn", casualPhrases[i]))
			break
		}
	}
	return errs
}

func validateFacebook(msg string) []string {
	var errs []string
	if utf8.RuneCountInString(msg) > FacebookLimit {
		errs = append(errs, fmt.Sprintf("Message exceeds Facebook Messenger character limit (%d)", FacebookLimit))
	}
	if countEmojis(msg) > 20 {
		errs = append(errs, "Message contains too many emojis")
	}
	return errs
}

func validateInstagram(msg string) []string {
	var errs []string
	if n := utf8.RuneCountInString(msg); n > InstagramLimit {
		errs = append(errs, fmt.Sprintf("Message exceeds Instagram DM character limit (%d). Current length: %d", InstagramLimit, n))
	}
	if len(hashtagRe.FindAllString(msg, -1)) > 10 {
		errs = append(errs, "Message contains too many hashtags")
	}
	return errs
}

func validateTelegram(msg string) []string {
	var errs []string
	if n := utf8.RuneCountInString(msg); n > TelegramLimit {
		errs = append(errs, fmt.Sprintf("Message exceeds Telegram character limit (%d). Current length: %d", TelegramLimit, n))
	}
	if !strings.ContainsAny(msg, "*_`") {
		return errs
	}
	if strings.Count(msg, "*")%2 != 0 {
		errs = append(errs, "Message has unclosed bold/italic Markdown (*)")
	}
	if strings.Count(msg, "_")%2 != 0 {
		errs = append(errs, "Message has unclosed italic Markdown (_)")
	}
	// A lone pair of ``` fences counts 6 backticks.
	if n := strings.Count(msg, "`"); n%2 != 0 && n%6 != 0 {
		errs = append(errs, "Message has unclosed code Markdown (`)")
	}
	return errs
}

var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, {0x1F300, 0x1F5FF}, {0x1F680, 0x1F6FF},
	{0x1F700, 0x1F77F}, {0x1F780, 0x1F7FF}, {0x1F800, 0x1F8FF},
	{0x1F900, 0x1F9FF}, {0x1FA00, 0x1FA6F}, {0x1FA70, 0x1FAFF},
	{0x2600, 0x26FF}, {0x2700, 0x27BF},
}

func countEmojis(s string) int {
	n := 0
	for _, r := range s {
		for _, rg := range emojiRanges {
			if r >= rg[0] && r <= rg[1] {
				n++
				break
			}
		}
	}
	return n
}
