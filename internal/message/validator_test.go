package message_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/message"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestValidateEmpty(t *testing.T) {
	v := message.NewValidator()
	for _, ch := range model.AllChannels {
		res := v.Validate("   \n\t", ch)
		require.False(t, res.IsValid, ch)
		require.Equal(t, []string{"Message cannot be empty"}, res.Errors)
	}
}

func TestValidateLinkedInBoundary(t *testing.T) {
	v := message.NewValidator()

	res := v.Validate(strings.Repeat("a", 1900), model.ChannelLinkedIn)
	require.True(t, res.IsValid)
	require.Empty(t, res.Errors)

	res = v.Validate(strings.Repeat("a", 1901), model.ChannelLinkedIn)
	require.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "1900")
	require.Contains(t, res.Errors[0], "Current length: 1901")
}

func TestValidateLinkedInRules(t *testing.T) {
	v := message.NewValidator()

	res := v.Validate("#a #b #c #d #e #f", model.ChannelLinkedIn)
	require.Equal(t, []string{"Message contains too many hashtags for LinkedIn"}, res.Errors)

	res = v.Validate("see http://a.io http://b.io https://c.io", model.ChannelLinkedIn)
	require.Equal(t, []string{"Message contains too many links for LinkedIn"}, res.Errors)

	res = v.Validate("Hey there, wanna talk?", model.ChannelLinkedIn)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], `"hey there"`)

	// whole words only
	res = v.Validate("Thank you for your support", model.ChannelLinkedIn)
	require.True(t, res.IsValid)
}

func TestValidateEmail(t *testing.T) {
	v := message.NewValidator()

	res := v.Validate("Get it FREE!!!! now http://a http://b http://c http://d", model.ChannelEmail)
	require.Equal(t, []string{
		"Message contains potential spam trigger words (all caps)",
		"Message contains too many exclamation marks",
		"Message contains too many links",
	}, res.Errors)

	res = v.Validate("<html><body><p>hi</body></html>", model.ChannelEmail)
	require.Equal(t, []string{"HTML in message has unclosed tags"}, res.Errors)

	res = v.Validate("<html><body><p>hi</p></body></html>", model.ChannelEmail)
	require.True(t, res.IsValid)

	res = v.Validate("free stuff, limited time", model.ChannelEmail)
	require.True(t, res.IsValid)
}

func TestValidateEmojiLimits(t *testing.T) {
	v := message.NewValidator()
	smiles := strings.Repeat("😀", 16)

	require.False(t, v.Validate(smiles, model.ChannelWhatsApp).IsValid)
	require.True(t, v.Validate(smiles, model.ChannelFacebook).IsValid)
	require.False(t, v.Validate(strings.Repeat("☀", 21), model.ChannelFacebook).IsValid)
}

func TestValidateInstagramAndTelegram(t *testing.T) {
	v := message.NewValidator()

	res := v.Validate(strings.Repeat("b", 1001), model.ChannelInstagram)
	require.Equal(t, []string{"Message exceeds Instagram DM character limit (1000). Current length: 1001"}, res.Errors)

	res = v.Validate(strings.Repeat("#t ", 11), model.ChannelInstagram)
	require.Equal(t, []string{"Message contains too many hashtags"}, res.Errors)

	res = v.Validate("*bold _it", model.ChannelTelegram)
	require.Equal(t, []string{
		"Message has unclosed bold/italic Markdown (*)",
		"Message has unclosed italic Markdown (_)",
	}, res.Errors)

	require.True(t, v.Validate("```code```", model.ChannelTelegram).IsValid)
	require.False(t, v.Validate("`oops", model.ChannelTelegram).IsValid)
	require.False(t, v.Validate(strings.Repeat("x", 4097), model.ChannelTelegram).IsValid)
}

func TestValidateUnknownChannelPasses(t *testing.T) {
	res := message.NewValidator().Validate("anything", model.Channel("pigeon"))
	require.True(t, res.IsValid)
	require.Empty(t, res.Errors)
}
