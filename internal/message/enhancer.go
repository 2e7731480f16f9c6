// internal/message/enhancer.go
package message

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneNeutral      Tone = "neutral"
)

// Style is informational; only the tone changes wording.
type Style string

// ToneFor returns the tone and style used for ch.
func ToneFor(ch model.Channel) (Tone, Style) {
	switch ch {
	case model.ChannelLinkedIn:
		return ToneProfessional, "concise"
	case model.ChannelEmail:
		return ToneProfessional, "detailed"
	case model.ChannelWhatsApp:
		return ToneCasual, "concise"
	case model.ChannelFacebook:
		return ToneCasual, "friendly"
	case model.ChannelInstagram:
		return ToneCasual, "visual"
	case model.ChannelTelegram:
		return ToneCasual, "direct"
	default:
		return ToneNeutral, "balanced"
	}
}

var (
	professionalSwaps = []*strings.Replacer{
		strings.NewReplacer("Hey", "Hello"),
		strings.NewReplacer("Hi there", "Greetings"),
		strings.NewReplacer("Thanks", "Thank you"),
		strings.NewReplacer("Cheers", "Best regards"),
	}
	casualSwaps = []*strings.Replacer{
		strings.NewReplacer("Dear", "Hi"),
		strings.NewReplacer("Greetings", "Hey there"),
		strings.NewReplacer("Best regards", "Cheers"),
		strings.NewReplacer("Thank you", "Thanks"),
	}
	signOffRe = regexp.MustCompile(`(?i)Regards|Sincerely|Cheers|Thanks|Thank you`)

	industryPhrases = map[string]string{
		"technology": "As someone working in technology, you'll appreciate how our solution leverages cutting-edge innovations.",
		"healthcare": "In the healthcare sector, compliance and security are paramount, which is why our solution was designed with these priorities in mind.",
		"finance":    "For finance professionals like yourself, ROI and data security are critical factors that our solution addresses.",
		"education":  "Educators like you understand the importance of scalable and accessible solutions, which is exactly what we provide.",
		"retail":     "In the competitive retail space, customer engagement is key, and our solution helps you stand out.",
	}
)

// RuleEnhancer adjusts greeting, tone, industry context and sign-off.
type RuleEnhancer struct{}

func (RuleEnhancer) Enhance(_ context.Context, msg string, in EnhanceInput) (string, error) {
	tone, _ := ToneFor(in.Channel)
	out := msg

	if in.Recipient != nil && in.Recipient.Name != "" && !strings.Contains(out, in.Recipient.Name) {
		out = fmt.Sprintf("Hi %s, \n\n%s", in.Recipient.Name, out)
	}

	switch tone {
	case ToneProfessional:
		out = applySequential(out, professionalSwaps)
	case ToneCasual:
		out = applySequential(out, casualSwaps)
	}

	if industry := in.Recipient.Meta("industry"); industry != "" && !strings.Contains(out, industry) {
		phrase, ok := industryPhrases[strings.ToLower(industry)]
		if !ok {
			phrase = fmt.Sprintf("In the %s industry, staying ahead of trends is crucial.", industry)
		}
		out += "\n\n" + phrase
	}

	if !signOffRe.MatchString(out) {
		company := ""
		if in.Campaign != nil {
			company = in.Campaign.Company
		}
		if tone == ToneProfessional {
			out += fmt.Sprintf("\n\nBest regards,\n%s Team", company)
		} else {
			out += fmt.Sprintf("\n\nCheers,\n%s Team", company)
		}
	}
	return out, nil
}

// Each swap sees the output of the previous one.
func applySequential(s string, rs []*strings.Replacer) string {
	for _, r := range rs {
		s = r.Replace(s)
	}
	return s
}
