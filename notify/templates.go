// Package notify turns membership changes into spoken notifications: it
// renders event text, synthesizes audio through the provider chain and
// speech cache, and plays the artifact into the active voice session.
package notify

import (
	"fmt"

	"github.com/bellhopd/bellhop/platform"
)

// Default announcement templates. Each takes the member display name.
const (
	DefaultJoinTemplate  = "Bem vindo %s"
	DefaultLeaveTemplate = "tchau tchau %s"
	DefaultMoveTemplate  = "trocou de canal %s"
)

// Templates holds the announcement text per membership change kind.
// A %s verb receives the member's display name.
type Templates struct {
	Join  string
	Leave string
	Move  string
}

// DefaultTemplates returns the stock announcement templates.
func DefaultTemplates() Templates {
	return Templates{
		Join:  DefaultJoinTemplate,
		Leave: DefaultLeaveTemplate,
		Move:  DefaultMoveTemplate,
	}
}

// Render produces the announcement text for a membership change. The second
// return is false when the change kind has no announcement.
func (t Templates) Render(change platform.MembershipChange) (string, bool) {
	name := change.Member.DisplayName
	if name == "" {
		name = change.Member.Username
	}

	switch change.Kind() {
	case platform.MemberJoined:
		return fmt.Sprintf(t.Join, name), true
	case platform.MemberLeft:
		return fmt.Sprintf(t.Leave, name), true
	case platform.MemberMoved:
		return fmt.Sprintf(t.Move, name), true
	default:
		return "", false
	}
}
