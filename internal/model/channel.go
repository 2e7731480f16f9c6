// internal/model/channel.go
package model

// Channel identifies an outbound messaging channel.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelLinkedIn  Channel = "linkedin"
	ChannelFacebook  Channel = "facebook"
	ChannelInstagram Channel = "instagram"
	ChannelTelegram  Channel = "telegram"
)

var AllChannels = []Channel{
	ChannelEmail, ChannelWhatsApp, ChannelLinkedIn,
	ChannelFacebook, ChannelInstagram, ChannelTelegram,
}

func (c Channel) Valid() bool {
	for _, ch := range AllChannels {
		if ch == c {
			return true
		}
	}
	return false
}

// IsSocial reports whether recipients are addressed by (platform, platform_id).
func (c Channel) IsSocial() bool {
	switch c {
	case ChannelLinkedIn, ChannelFacebook, ChannelInstagram, ChannelTelegram:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }
