package gateway

import (
	"encoding/json"
	"time"

	"github.com/bellhopd/bellhop/platform"
)

// Gateway operation codes.
const (
	opIdentify    = "identify"
	opReady       = "ready"
	opVoiceState  = "voice_state"
	opVoiceOp     = "voice_op"
	opVoiceResult = "voice_result"
	opPlay        = "play"
	opPlayResult  = "play_result"
)

// Voice actions carried by opVoiceOp.
const (
	actionJoin  = "join"
	actionMove  = "move"
	actionLeave = "leave"
)

// Result codes the gateway maps onto platform errors.
const (
	codeSessionInvalid = "session_invalid"
	codeChannelGone    = "channel_gone"
)

// envelope is the framing for every gateway message.
type envelope struct {
	Op    string          `json:"op"`
	Nonce string          `json:"nonce,omitempty"`
	Data  json.RawMessage `json:"d,omitempty"`
}

// identifyPayload authenticates the agent connection.
type identifyPayload struct {
	Token string `json:"token"`
}

// memberPayload is the wire form of a channel occupant.
type memberPayload struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	Bot           bool      `json:"bot"`
	System        bool      `json:"system"`
	Muted         bool      `json:"muted"`
	Deafened      bool      `json:"deafened"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

func (m memberPayload) toMember() platform.Member {
	return platform.Member{
		ID:            m.ID,
		DisplayName:   m.DisplayName,
		Username:      m.Username,
		Discriminator: m.Discriminator,
		Bot:           m.Bot,
		System:        m.System,
		Muted:         m.Muted,
		Deafened:      m.Deafened,
		CreatedAt:     m.CreatedAt,
	}
}

// channelPayload is the wire form of a voice channel snapshot.
type channelPayload struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Members []memberPayload `json:"members"`
}

// communityPayload is the wire form of a community snapshot.
type communityPayload struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Channels []channelPayload `json:"channels"`
}

// readyPayload delivers the initial membership view.
type readyPayload struct {
	Communities []communityPayload `json:"communities"`
}

// voiceStatePayload reports one member's voice transition.
type voiceStatePayload struct {
	CommunityID       string        `json:"community_id"`
	Member            memberPayload `json:"member"`
	PreviousChannelID string        `json:"previous_channel_id,omitempty"`
	NextChannelID     string        `json:"next_channel_id,omitempty"`
}

// voiceOpPayload carries a join/move/leave command.
type voiceOpPayload struct {
	Action      string `json:"action"`
	CommunityID string `json:"community_id"`
	ChannelID   string `json:"channel_id,omitempty"`
}

// playPayload starts audio playback in the agent's session.
type playPayload struct {
	CommunityID string `json:"community_id"`
	Path        string `json:"path"`
}

// resultPayload acknowledges a command.
type resultPayload struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
