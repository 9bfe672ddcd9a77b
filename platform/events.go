package platform

import "time"

// MembershipChangeKind classifies a membership change event.
type MembershipChangeKind int

const (
	// MemberJoined indicates the member entered a voice channel from none.
	MemberJoined MembershipChangeKind = iota
	// MemberLeft indicates the member left voice entirely.
	MemberLeft
	// MemberMoved indicates the member switched between two voice channels.
	MemberMoved
)

// String returns the event kind name.
func (k MembershipChangeKind) String() string {
	switch k {
	case MemberJoined:
		return "joined"
	case MemberLeft:
		return "left"
	case MemberMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// MembershipChange describes one member's voice-channel transition.
// Previous and Next are nil when the member was not in a channel on that
// side of the transition.
type MembershipChange struct {
	Community Community
	Member    Member
	Previous  Channel
	Next      Channel
	At        time.Time
}

// Kind derives the change classification from the Previous/Next channels.
func (c *MembershipChange) Kind() MembershipChangeKind {
	switch {
	case c.Previous == nil && c.Next != nil:
		return MemberJoined
	case c.Previous != nil && c.Next == nil:
		return MemberLeft
	default:
		return MemberMoved
	}
}

// EventHandler receives platform events from an adapter. Implementations
// must not block: slow work belongs on a background worker.
type EventHandler interface {
	// HandleMembershipChange is invoked for every voice membership change.
	HandleMembershipChange(change *MembershipChange)

	// HandleReady is invoked once the agent's platform connection is
	// established and the membership view is being delivered.
	HandleReady(communities []Community)
}
