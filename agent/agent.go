// Package agent wires platform events into presence decisions and spoken
// notifications. The Agent is the platform adapter's EventHandler: every
// membership change is evaluated by the connection manager and, for human
// members, announced in the community's active channel.
package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/bellhopd/bellhop/connection"
	"github.com/bellhopd/bellhop/logger"
	"github.com/bellhopd/bellhop/notify"
	"github.com/bellhopd/bellhop/platform"
)

// CommunitySource supplies the current membership view. The gateway client
// implements it.
type CommunitySource interface {
	Communities() []platform.Community
}

// Agent connects the event stream to the presence and notification layers.
type Agent struct {
	selfID    string
	manager   *connection.Manager
	announcer *notify.Announcer
	source    CommunitySource

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an agent. selfID is the agent's own member identifier; its own
// voice transitions are never announced.
func New(selfID string, manager *connection.Manager, announcer *notify.Announcer, source CommunitySource) *Agent {
	return &Agent{
		selfID:    selfID,
		manager:   manager,
		announcer: announcer,
		source:    source,
	}
}

// Start launches the announcement workers and the periodic health
// reconciliation loop. It returns immediately.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)

	if a.announcer != nil {
		a.announcer.Start(a.ctx)
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.manager.Run(a.ctx, a.source.Communities)
	}()
}

// Stop halts background work and disconnects all sessions.
func (a *Agent) Stop(ctx context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	if a.announcer != nil {
		a.announcer.Stop()
	}
	a.manager.Shutdown(ctx)
}

// HandleMembershipChange re-evaluates the community and queues the spoken
// notification. Decision execution runs on a background goroutine; the
// manager serializes it per community.
func (a *Agent) HandleMembershipChange(change *platform.MembershipChange) {
	community := change.Community
	a.spawn(func(ctx context.Context) {
		a.evaluate(ctx, community)
	})

	if a.announcer != nil && a.announceable(change.Member) {
		a.announcer.Announce(change)
	}
}

// HandleReady reconciles all communities against the fresh membership view.
// Ready fires on every (re)connect, so stale sessions from a previous
// gateway connection are cleaned up here.
func (a *Agent) HandleReady(communities []platform.Community) {
	logger.Info("membership view ready", "communities", len(communities))
	a.spawn(func(ctx context.Context) {
		a.manager.Reconcile(ctx, communities)
	})
}

// announceable reports whether a member's transitions are spoken. The agent
// itself, other automated accounts, and platform service accounts are not.
func (a *Agent) announceable(m platform.Member) bool {
	if m.Bot || m.System {
		return false
	}
	if a.selfID != "" && m.ID == a.selfID {
		return false
	}
	return m.Discriminator != platform.PlaceholderDiscriminator
}

func (a *Agent) evaluate(ctx context.Context, community platform.Community) {
	decision, err := a.manager.HandleEvent(ctx, community)
	if err == nil || suppressed(err) {
		return
	}
	logger.Error("presence decision failed",
		"community", community.Name(), "decision", decision.Kind.String(), "error", err)
}

// suppressed reports whether err is an expected drop, not a failure.
func suppressed(err error) bool {
	return errors.Is(err, connection.ErrSwitchCooldown) ||
		errors.Is(err, connection.ErrStartupGrace)
}

// spawn runs fn on a tracked goroutine bound to the agent's lifecycle.
// Before Start the work runs against the background context so early events
// are never lost.
func (a *Agent) spawn(fn func(ctx context.Context)) {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(ctx)
	}()
}
