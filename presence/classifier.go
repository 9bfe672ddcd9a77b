// Package presence decides where the agent should be: it classifies channel
// occupants, counts humans per channel, and turns a membership snapshot plus
// the current session state into a single join/move/leave/stay decision.
package presence

import (
	"time"

	"github.com/bellhopd/bellhop/platform"
)

// Classifier decides whether an observed member counts as human.
type Classifier struct {
	// AgentID is the agent's own member identifier, excluded from counts.
	AgentID string

	// ExcludeNewAccounts, when set, also excludes accounts younger than
	// NewAccountAge that still carry a default display name. Off by default.
	ExcludeNewAccounts bool

	// NewAccountAge is the age threshold for ExcludeNewAccounts.
	NewAccountAge time.Duration

	// Now is the clock used for account-age checks. Defaults to time.Now.
	Now func() time.Time
}

// IsHuman reports whether the member counts as a human occupant.
// It is total: any well-formed Member value yields an answer.
func (c *Classifier) IsHuman(m platform.Member) bool {
	if m.Bot {
		return false
	}
	if c.AgentID != "" && m.ID == c.AgentID {
		return false
	}
	if m.System {
		return false
	}
	if m.Discriminator == platform.PlaceholderDiscriminator {
		return false
	}
	if c.ExcludeNewAccounts && c.isSuspiciousNewAccount(m) {
		return false
	}
	return true
}

// isSuspiciousNewAccount flags very young accounts whose display name still
// equals the account name.
func (c *Classifier) isSuspiciousNewAccount(m platform.Member) bool {
	if m.CreatedAt.IsZero() || m.DisplayName != m.Username {
		return false
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().Sub(m.CreatedAt) < c.NewAccountAge
}
