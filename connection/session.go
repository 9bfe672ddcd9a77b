package connection

import (
	"time"

	"github.com/google/uuid"

	"github.com/bellhopd/bellhop/platform"
)

// State is the lifecycle state of a community's session slot.
type State int

const (
	// Idle means no session exists.
	Idle State = iota
	// Connecting means a join attempt is in progress.
	Connecting
	// Connected means a live session exists.
	Connected
	// Disconnecting means a leave is in progress.
	Disconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "idle"
	}
}

// Session records the agent's active voice connection in one community.
// At most one Session exists per community at any time; it is created on a
// successful join and destroyed on disconnect, graceful or forced.
type Session struct {
	// ID uniquely identifies this session instance.
	ID string

	// CommunityID is the owning community.
	CommunityID string

	// Transport is the platform voice session.
	Transport platform.VoiceSession

	// JoinedAt is when the session was established.
	JoinedAt time.Time

	// LastSwitch is the time of the last successful join or move,
	// consulted by the switch cooldown.
	LastSwitch time.Time
}

// newSession creates a Session record for a freshly connected transport.
func newSession(communityID string, transport platform.VoiceSession, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		CommunityID: communityID,
		Transport:   transport,
		JoinedAt:    now,
		LastSwitch:  now,
	}
}
