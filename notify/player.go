package notify

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/bellhopd/bellhop/connection"
	"github.com/bellhopd/bellhop/logger"
	metrics "github.com/bellhopd/bellhop/metrics/prometheus"
	"github.com/bellhopd/bellhop/platform"
)

// defaultPlaybackWait bounds how long the player waits for a completion
// result before giving up on it.
const defaultPlaybackWait = 2 * time.Minute

// SessionSource exposes the connection state the player needs.
type SessionSource interface {
	// Session returns the community's active session, nil when idle.
	Session(communityID string) *connection.Session

	// Rejoin repairs the community's placement after an invalid session.
	Rejoin(ctx context.Context, community platform.Community) error
}

// Player plays notification artifacts into active voice sessions.
// Every reason not to play is a logged no-op, never an error: notifications
// are best-effort and must never disturb presence.
type Player struct {
	sessions SessionSource
	wait     time.Duration
}

// NewPlayer creates a notification player over the connection manager.
func NewPlayer(sessions SessionSource) *Player {
	return &Player{
		sessions: sessions,
		wait:     defaultPlaybackWait,
	}
}

// Play starts playback of the artifact at path in the community's session.
// It returns after playback starts; completion is observed in the
// background and resolved exactly once.
func (p *Player) Play(ctx context.Context, community platform.Community, path string) {
	session := p.sessions.Session(community.ID())
	if session == nil || !session.Transport.Connected() {
		logger.Debug("skipping playback, not connected", "community", community.Name())
		metrics.RecordPlayback("skipped")
		return
	}

	if _, err := os.Stat(path); err != nil {
		logger.Warn("skipping playback, artifact missing",
			"community", community.Name(), "path", path)
		metrics.RecordPlayback("skipped")
		return
	}

	if session.Transport.Playing() {
		logger.Debug("skipping playback, already playing", "community", community.Name())
		metrics.RecordPlayback("skipped")
		return
	}

	done, err := session.Transport.Play(path)
	if err != nil {
		p.handlePlayError(ctx, community, err)
		return
	}

	go p.awaitCompletion(ctx, community, done)
	logger.Debug("playing notification", "community", community.Name(), "path", path)
}

// awaitCompletion consumes the completion result exactly once. A completion
// error reporting the session invalid repairs it the same way a failed
// playback start does.
func (p *Player) awaitCompletion(ctx context.Context, community platform.Community, done <-chan error) {
	select {
	case err := <-done:
		if err != nil {
			logger.Error("playback failed", "community", community.Name(), "error", err)
			metrics.RecordPlayback("error")
			if errors.Is(err, platform.ErrSessionInvalid) {
				p.rejoin(ctx, community)
			}
			return
		}
		metrics.RecordPlayback("success")
	case <-time.After(p.wait):
		logger.Warn("playback completion never arrived", "community", community.Name())
		metrics.RecordPlayback("error")
	}
}

func (p *Player) handlePlayError(ctx context.Context, community platform.Community, err error) {
	metrics.RecordPlayback("error")

	if errors.Is(err, platform.ErrSessionInvalid) {
		p.rejoin(ctx, community)
		return
	}

	logger.Error("failed to start playback",
		"community", community.Name(), "error", err)
}

// rejoin asks the session source to repair an invalid session.
func (p *Player) rejoin(ctx context.Context, community platform.Community) {
	logger.Warn("session invalid during playback, rejoining",
		"community", community.Name())
	if err := p.sessions.Rejoin(ctx, community); err != nil {
		logger.Error("rejoin after invalid session failed",
			"community", community.Name(), "error", err)
	}
}
