package presence

import "github.com/bellhopd/bellhop/platform"

// DecisionKind is the action the engine selected for one evaluation.
type DecisionKind int

const (
	// Stay means no action: the current state already satisfies policy.
	Stay DecisionKind = iota
	// Join means open a session in the target channel.
	Join
	// Move means switch the existing session to the target channel.
	Move
	// Leave means disconnect the existing session.
	Leave
)

// String returns the decision name.
func (k DecisionKind) String() string {
	switch k {
	case Join:
		return "join"
	case Move:
		return "move"
	case Leave:
		return "leave"
	default:
		return "stay"
	}
}

// Decision is the engine's output for one evaluation: exactly one action,
// with the target channel and its human count for Join/Move.
type Decision struct {
	Kind   DecisionKind
	Target platform.Channel
	Humans int
}

// SessionView is the engine's read-only view of the agent's session state.
// A zero SessionView means no session.
type SessionView struct {
	// Connected reports whether a live session exists.
	Connected bool

	// ChannelID is the connected channel, empty when not connected.
	ChannelID string
}

// Engine combines census output with session state to produce decisions.
// Evaluation is pure: all side effects belong to the connection manager.
type Engine struct {
	census *Census
}

// NewEngine creates an Engine over the given census.
func NewEngine(census *Census) *Engine {
	return &Engine{census: census}
}

// Census returns the engine's census, for callers that need raw counts.
func (e *Engine) Census() *Census {
	return e.census
}

// Evaluate selects exactly one of join/move/leave/stay for the community
// given the current session view.
func (e *Engine) Evaluate(community platform.Community, view SessionView) Decision {
	target, count := e.census.FindBusiest(community)

	if e.ShouldJoin(view, target, count) {
		return Decision{Kind: Join, Target: target, Humans: count}
	}
	if e.ShouldMove(view, target, count) {
		return Decision{Kind: Move, Target: target, Humans: count}
	}
	if e.ShouldLeave(community, view) {
		return Decision{Kind: Leave}
	}
	return Decision{Kind: Stay}
}

// ShouldJoin reports whether the agent should open a new session in target.
// True iff a target exists with at least one human and no session is active.
func (e *Engine) ShouldJoin(view SessionView, target platform.Channel, count int) bool {
	return target != nil && count > 0 && !view.Connected
}

// ShouldMove reports whether the agent should switch its session to target.
// True iff a target exists with at least one human, a session is active, and
// the session is in a different channel.
func (e *Engine) ShouldMove(view SessionView, target platform.Channel, count int) bool {
	if target == nil || count == 0 || !view.Connected {
		return false
	}
	return view.ChannelID != target.ID()
}

// ShouldLeave reports whether the agent should disconnect: true iff a
// session is active and its channel holds no humans.
func (e *Engine) ShouldLeave(community platform.Community, view SessionView) bool {
	if !view.Connected {
		return false
	}
	return e.census.CountHumans(findChannel(community, view.ChannelID)) == 0
}

// findChannel locates a channel by ID, nil when absent.
func findChannel(community platform.Community, id string) platform.Channel {
	if id == "" {
		return nil
	}
	for _, ch := range community.VoiceChannels() {
		if ch.ID() == id {
			return ch
		}
	}
	return nil
}
