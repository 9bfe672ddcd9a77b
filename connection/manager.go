// Package connection owns the agent's voice sessions: it executes the
// presence engine's decisions with bounded timeouts, exponential backoff,
// and a per-community switch cooldown, and periodically reconciles session
// state against what the transport reports.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bellhopd/bellhop/logger"
	metrics "github.com/bellhopd/bellhop/metrics/prometheus"
	"github.com/bellhopd/bellhop/platform"
	"github.com/bellhopd/bellhop/presence"
)

// Default timing constants.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
	DefaultSwitchCooldown = 30 * time.Second
	DefaultHealthInterval = 5 * time.Minute
	DefaultStartupGrace   = 10 * time.Second
)

// Config configures the connection manager. Zero fields take defaults.
type Config struct {
	// ConnectTimeout bounds each individual join attempt.
	ConnectTimeout time.Duration

	// MaxAttempts is the number of join attempts before a permanent failure
	// is logged.
	MaxAttempts int

	// BackoffBase is the initial retry delay, doubled per attempt.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration

	// SwitchCooldown is the minimum interval between successful channel
	// switches in one community. Eligible actions inside the window are
	// suppressed, not queued.
	SwitchCooldown time.Duration

	// HealthInterval is the period of the reconciliation pass.
	HealthInterval time.Duration

	// StartupGrace suppresses connection attempts for this long after the
	// manager starts, letting the membership view stabilize.
	StartupGrace time.Duration
}

func (c *Config) defaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.SwitchCooldown == 0 {
		c.SwitchCooldown = DefaultSwitchCooldown
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.StartupGrace == 0 {
		c.StartupGrace = DefaultStartupGrace
	}
}

// communityState is the per-community session slot. Its mutex serializes all
// decision execution for the community, so a newer decision waits for an
// in-flight attempt rather than preempting it.
type communityState struct {
	mu         sync.Mutex
	state      State
	session    *Session
	lastSwitch time.Time
}

// Manager executes presence decisions against the platform transport.
type Manager struct {
	cfg    Config
	engine *presence.Engine

	startedAt time.Time
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	communities map[string]*communityState
}

// NewManager creates a connection manager. The startup grace period begins
// immediately.
func NewManager(cfg Config, engine *presence.Engine) *Manager {
	cfg.defaults()
	m := &Manager{
		cfg:         cfg,
		engine:      engine,
		now:         time.Now,
		sleep:       sleepContext,
		communities: make(map[string]*communityState),
	}
	m.startedAt = m.now()
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// state returns the community's session slot, creating it on first use.
func (m *Manager) state(communityID string) *communityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.communities[communityID]
	if !ok {
		cs = &communityState{}
		m.communities[communityID] = cs
	}
	return cs
}

// View returns the presence engine's view of the community's session.
func (m *Manager) View(communityID string) presence.SessionView {
	cs := m.state(communityID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return viewLocked(cs)
}

func viewLocked(cs *communityState) presence.SessionView {
	if cs.session == nil {
		return presence.SessionView{}
	}
	return presence.SessionView{
		Connected: true,
		ChannelID: cs.session.Transport.ChannelID(),
	}
}

// Session returns the community's active session, nil when idle.
func (m *Manager) Session(communityID string) *Session {
	cs := m.state(communityID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.session
}

// HandleEvent evaluates the community and executes the resulting decision.
// Calls for the same community are serialized in arrival order.
func (m *Manager) HandleEvent(ctx context.Context, community platform.Community) (presence.Decision, error) {
	cs := m.state(community.ID())
	cs.mu.Lock()
	defer cs.mu.Unlock()

	decision := m.engine.Evaluate(community, viewLocked(cs))
	metrics.RecordDecision(decision.Kind.String())
	return decision, m.applyLocked(ctx, community, cs, decision)
}

// applyLocked executes a decision. Caller holds cs.mu.
func (m *Manager) applyLocked(ctx context.Context, community platform.Community, cs *communityState, d presence.Decision) error {
	switch d.Kind {
	case presence.Join:
		return m.joinLocked(ctx, community, cs, d.Target, d.Humans)
	case presence.Move:
		return m.moveLocked(ctx, community, cs, d.Target, d.Humans)
	case presence.Leave:
		return m.leaveLocked(ctx, community, cs)
	default:
		return nil
	}
}

// suppressedLocked checks grace period and switch cooldown for a connection
// action. Caller holds cs.mu.
func (m *Manager) suppressedLocked(cs *communityState, community, channel, op string) error {
	if m.now().Sub(m.startedAt) < m.cfg.StartupGrace {
		logger.Debug("connection suppressed by startup grace",
			"community", community, "channel", channel, "action", op)
		return ErrStartupGrace
	}
	if !cs.lastSwitch.IsZero() && m.now().Sub(cs.lastSwitch) < m.cfg.SwitchCooldown {
		logger.Debug("connection suppressed by switch cooldown",
			"community", community, "channel", channel, "action", op,
			"since_last_switch", m.now().Sub(cs.lastSwitch))
		metrics.RecordCooldownSuppressed()
		return ErrSwitchCooldown
	}
	return nil
}

// joinLocked opens a session in target. Caller holds cs.mu.
func (m *Manager) joinLocked(ctx context.Context, community platform.Community, cs *communityState, target platform.Channel, humans int) error {
	if err := m.suppressedLocked(cs, community.ID(), target.ID(), "join"); err != nil {
		return err
	}
	err := m.connectLocked(ctx, community, cs, target)
	if err == nil {
		logger.ConnectionResult(community.Name(), target.Name(), "join", nil, "members", humans)
	}
	return err
}

// connectLocked runs the bounded, backed-off join loop. Grace and cooldown
// are the caller's concern. Caller holds cs.mu.
func (m *Manager) connectLocked(ctx context.Context, community platform.Community, cs *communityState, target platform.Channel) error {
	cs.state = Connecting
	backoff := m.cfg.BackoffBase

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		logger.ConnectionAttempt(community.Name(), target.Name(), attempt, m.cfg.MaxAttempts)
		metrics.RecordConnectionAttempt("join")

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		transport, err := target.Connect(attemptCtx)
		cancel()

		if err == nil {
			now := m.now()
			cs.session = newSession(community.ID(), transport, now)
			cs.lastSwitch = now
			cs.state = Connected
			metrics.RecordConnectionOutcome("join", "success")
			return nil
		}
		lastErr = err

		// A failed attempt retains no session resources; there is nothing
		// to clean up before the next try.
		if !IsTransient(err) {
			cs.state = Idle
			metrics.RecordConnectionOutcome("join", "permanent_failure")
			connErr := &ConnectError{
				Community: community.ID(), Channel: target.ID(),
				Op: "join", Attempts: attempt, Cause: err,
			}
			logger.ConnectionResult(community.Name(), target.Name(), "join", connErr)
			return connErr
		}

		if attempt < m.cfg.MaxAttempts {
			if sleepErr := m.sleep(ctx, calculateBackoff(backoff, m.cfg.BackoffMax)); sleepErr != nil {
				cs.state = Idle
				return sleepErr
			}
			backoff *= 2
			if backoff > m.cfg.BackoffMax {
				backoff = m.cfg.BackoffMax
			}
		}
	}

	cs.state = Idle
	metrics.RecordConnectionOutcome("join", "retries_exhausted")
	connErr := &ConnectError{
		Community: community.ID(), Channel: target.ID(),
		Op: "join", Attempts: m.cfg.MaxAttempts, Cause: lastErr, Transient: true,
	}
	logger.ConnectionResult(community.Name(), target.Name(), "join", connErr)
	return connErr
}

// moveLocked switches the session to target, falling back to a full
// disconnect-and-reconnect when the transport reports the session invalid.
// Caller holds cs.mu.
func (m *Manager) moveLocked(ctx context.Context, community platform.Community, cs *communityState, target platform.Channel, humans int) error {
	if cs.session == nil {
		return ErrNoSession
	}
	if err := m.suppressedLocked(cs, community.ID(), target.ID(), "move"); err != nil {
		return err
	}

	metrics.RecordConnectionAttempt("move")
	err := cs.session.Transport.MoveTo(ctx, target)
	if err == nil {
		now := m.now()
		cs.lastSwitch = now
		cs.session.LastSwitch = now
		metrics.RecordConnectionOutcome("move", "success")
		logger.ConnectionResult(community.Name(), target.Name(), "move", nil, "members", humans)
		return nil
	}

	if errors.Is(err, platform.ErrSessionInvalid) {
		logger.Warn("session invalid during move, reconnecting",
			"community", community.Name(), "channel", target.Name())
		m.forceCleanupLocked(ctx, cs)
		reconnectErr := m.connectLocked(ctx, community, cs, target)
		if reconnectErr == nil {
			logger.ConnectionResult(community.Name(), target.Name(), "move", nil,
				"members", humans, "reconnected", true)
		}
		return reconnectErr
	}

	metrics.RecordConnectionOutcome("move", "failure")
	connErr := &ConnectError{
		Community: community.ID(), Channel: target.ID(),
		Op: "move", Attempts: 1, Cause: err, Transient: IsTransient(err),
	}
	logger.ConnectionResult(community.Name(), target.Name(), "move", connErr)
	return connErr
}

// leaveLocked disconnects the session. Local state is always dropped, even
// when the remote acknowledgement fails. Caller holds cs.mu.
func (m *Manager) leaveLocked(ctx context.Context, community platform.Community, cs *communityState) error {
	if cs.session == nil {
		return ErrNoSession
	}

	cs.state = Disconnecting
	metrics.RecordConnectionAttempt("leave")

	err := cs.session.Transport.Disconnect(ctx, false)
	if err != nil {
		logger.Warn("graceful disconnect failed, forcing cleanup",
			"community", community.Name(), "error", err)
		_ = cs.session.Transport.Disconnect(ctx, true)
		metrics.RecordConnectionOutcome("leave", "forced")
	} else {
		metrics.RecordConnectionOutcome("leave", "success")
	}

	cs.session = nil
	cs.state = Idle
	logger.ConnectionResult(community.Name(), "", "leave", nil)
	return nil
}

// forceCleanupLocked drops the session record after forcing the transport
// down. Caller holds cs.mu.
func (m *Manager) forceCleanupLocked(ctx context.Context, cs *communityState) {
	if cs.session == nil {
		return
	}
	_ = cs.session.Transport.Disconnect(ctx, true)
	cs.session = nil
	cs.state = Idle
	metrics.RecordForcedCleanup()
}

// Rejoin force-cleans the community's session and joins the busiest channel
// if one exists. Used when playback reports the session invalid. As a repair
// of an existing placement rather than a channel switch, it is exempt from
// the cooldown.
func (m *Manager) Rejoin(ctx context.Context, community platform.Community) error {
	cs := m.state(community.ID())
	cs.mu.Lock()
	defer cs.mu.Unlock()

	m.forceCleanupLocked(ctx, cs)

	decision := m.engine.Evaluate(community, viewLocked(cs))
	if decision.Kind != presence.Join {
		return nil
	}
	err := m.connectLocked(ctx, community, cs, decision.Target)
	if err == nil {
		logger.ConnectionResult(community.Name(), decision.Target.Name(), "rejoin", nil,
			"members", decision.Humans)
	}
	return err
}

// Reconcile runs one health pass over the given communities. It force-cleans
// sessions the transport reports down, rejoining when humans remain, and
// re-evaluates move/leave for live sessions. Every action it takes is
// idempotent and re-derivable, so racing a foreground event is harmless.
func (m *Manager) Reconcile(ctx context.Context, communities []platform.Community) {
	for _, community := range communities {
		summary := m.engine.Census().Summary(community)
		logger.Debug("channel activity",
			"community", community.Name(),
			"channels", summary.TotalChannels,
			"active", summary.ActiveChannels,
			"humans", summary.TotalHumans)

		cs := m.state(community.ID())
		cs.mu.Lock()

		if cs.session != nil && !cs.session.Transport.Connected() {
			logger.Warn("health check found dead session, cleaning up",
				"community", community.Name(), "session", cs.session.ID)
			metrics.RecordHealthCleanup()
			m.forceCleanupLocked(ctx, cs)
		}

		decision := m.engine.Evaluate(community, viewLocked(cs))
		if decision.Kind != presence.Stay {
			logger.Debug("health check decision",
				"community", community.Name(), "decision", decision.Kind.String())
			if err := m.applyLocked(ctx, community, cs, decision); err != nil &&
				!errors.Is(err, ErrSwitchCooldown) && !errors.Is(err, ErrStartupGrace) {
				logger.Error("health check action failed",
					"community", community.Name(),
					"decision", decision.Kind.String(), "error", err)
			}
		}

		cs.mu.Unlock()
	}
}

// Run executes the periodic health-reconciliation loop until ctx is done.
// The communities func is called on every tick for a fresh membership view.
// The first reconciliation happens just after the startup grace period
// expires, so a quiet community is joined without waiting for an event.
func (m *Manager) Run(ctx context.Context, communities func() []platform.Community) {
	startup := time.NewTimer(m.cfg.StartupGrace + time.Second)
	defer startup.Stop()
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		m.Reconcile(ctx, communities())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reconcile(ctx, communities())
		}
	}
}

// Shutdown disconnects all active sessions.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.communities))
	for id := range m.communities {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		cs := m.state(id)
		cs.mu.Lock()
		if cs.session != nil {
			if err := cs.session.Transport.Disconnect(ctx, false); err != nil {
				_ = cs.session.Transport.Disconnect(ctx, true)
			}
			cs.session = nil
			cs.state = Idle
		}
		cs.mu.Unlock()
	}
}
