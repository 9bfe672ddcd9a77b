// Package platform defines the narrow surface bellhop consumes from the
// voice platform SDK: membership snapshots, channel/community queries, and
// the voice session primitives. The core packages depend only on these
// interfaces, never on a concrete SDK type; platform/gateway provides the
// websocket-backed implementation.
package platform

import (
	"context"
	"time"
)

// PlaceholderDiscriminator is the sentinel discriminator carried by
// duplicate-identity (webhook-style) accounts.
const PlaceholderDiscriminator = "0000"

// Member is a snapshot of a participant as observed in a voice channel.
// Members are reported by the platform and never owned by bellhop.
type Member struct {
	// ID is the platform-wide member identifier.
	ID string

	// DisplayName is the name shown in the channel.
	DisplayName string

	// Username is the account name (may differ from DisplayName).
	Username string

	// Discriminator is the legacy account tag. Duplicate-identity
	// placeholder accounts carry PlaceholderDiscriminator.
	Discriminator string

	// Bot is true for non-human accounts.
	Bot bool

	// System is true for platform service accounts.
	System bool

	// Muted and Deafened reflect the member's current voice state.
	Muted    bool
	Deafened bool

	// CreatedAt is the account creation time, when the platform reports it.
	CreatedAt time.Time
}

// Channel is a voice room members can occupy simultaneously.
type Channel interface {
	// ID returns the channel identifier.
	ID() string

	// Name returns the channel display name.
	Name() string

	// Members returns the current occupants in platform order.
	// The order carries no meaning beyond tie-breaking.
	Members() []Member

	// Connect opens a voice session in this channel. The call respects the
	// context deadline; on failure no session resources are retained.
	Connect(ctx context.Context) (VoiceSession, error)
}

// Community is a top-level group containing voice channels and members.
type Community interface {
	// ID returns the community identifier.
	ID() string

	// Name returns the community display name.
	Name() string

	// VoiceChannels returns the community's voice channels in platform order.
	VoiceChannels() []Channel
}

// VoiceSession is the agent's live voice connection within one community.
type VoiceSession interface {
	// ChannelID returns the identifier of the connected channel.
	ChannelID() string

	// Connected reports whether the transport considers the session live.
	Connected() bool

	// Playing reports whether audio playback is in progress.
	Playing() bool

	// MoveTo switches the session to another channel in place.
	// Returns ErrSessionInvalid if the transport no longer recognizes
	// the session.
	MoveTo(ctx context.Context, ch Channel) error

	// Disconnect tears the session down. With force set, local state is
	// dropped even if the remote acknowledgement fails.
	Disconnect(ctx context.Context, force bool) error

	// Play starts playback of the audio artifact at path. The returned
	// channel receives the completion result exactly once: nil on clean
	// completion, the playback error otherwise.
	Play(path string) (<-chan error, error)
}
