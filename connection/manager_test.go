package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bellhopd/bellhop/platform"
	"github.com/bellhopd/bellhop/presence"
)

type fakeTransport struct {
	channelID     string
	connected     bool
	moveErr       error
	disconnectErr error
	moves         int
	disconnects   int
	forced        int
}

func (t *fakeTransport) ChannelID() string { return t.channelID }
func (t *fakeTransport) Connected() bool   { return t.connected }
func (t *fakeTransport) Playing() bool     { return false }

func (t *fakeTransport) MoveTo(_ context.Context, ch platform.Channel) error {
	t.moves++
	if t.moveErr != nil {
		return t.moveErr
	}
	t.channelID = ch.ID()
	return nil
}

func (t *fakeTransport) Disconnect(_ context.Context, force bool) error {
	t.disconnects++
	if force {
		t.forced++
		t.connected = false
		return nil
	}
	if t.disconnectErr != nil {
		return t.disconnectErr
	}
	t.connected = false
	return nil
}

func (t *fakeTransport) Play(string) (<-chan error, error) {
	ch := make(chan error, 1)
	ch <- nil
	return ch, nil
}

type fakeChannel struct {
	id      string
	name    string
	members []platform.Member
	connect func(ctx context.Context) (platform.VoiceSession, error)

	connects int
}

func (c *fakeChannel) ID() string                 { return c.id }
func (c *fakeChannel) Name() string               { return c.name }
func (c *fakeChannel) Members() []platform.Member { return c.members }

func (c *fakeChannel) Connect(ctx context.Context) (platform.VoiceSession, error) {
	c.connects++
	if c.connect != nil {
		return c.connect(ctx)
	}
	return &fakeTransport{channelID: c.id, connected: true}, nil
}

type fakeCommunity struct {
	id       string
	name     string
	channels []platform.Channel
}

func (s *fakeCommunity) ID() string                        { return s.id }
func (s *fakeCommunity) Name() string                      { return s.name }
func (s *fakeCommunity) VoiceChannels() []platform.Channel { return s.channels }

func humans(n int) []platform.Member {
	members := make([]platform.Member, n)
	for i := range members {
		members[i] = platform.Member{ID: string(rune('a' + i)), Discriminator: "1234"}
	}
	return members
}

func testEngine() *presence.Engine {
	classifier := &presence.Classifier{AgentID: "agent"}
	return presence.NewEngine(presence.NewCensus(classifier, nil))
}

// newTestManager returns a manager with instant backoff, no startup grace
// delay (clock starts past the grace window), and a controllable clock.
func newTestManager(cfg Config) (*Manager, *time.Time) {
	m := NewManager(cfg, testEngine())
	now := time.Now().Add(time.Hour)
	m.now = func() time.Time { return now }
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m, &now
}

func TestHandleEventJoinsBusiest(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(2)}
	empty := &fakeChannel{id: "c2", name: "Empty"}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{empty, general}}

	m, _ := newTestManager(Config{})
	decision, err := m.HandleEvent(context.Background(), community)
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if decision.Kind != presence.Join {
		t.Fatalf("decision = %v, want Join", decision.Kind)
	}

	view := m.View("g1")
	if !view.Connected || view.ChannelID != "c1" {
		t.Errorf("view = %+v, want connected to c1", view)
	}
	if m.Session("g1") == nil {
		t.Error("expected session record after join")
	}
}

func TestJoinRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	ch := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	ch.connect = func(context.Context) (platform.VoiceSession, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("gateway reset")
		}
		return &fakeTransport{channelID: ch.id, connected: true}, nil
	}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{ch}}

	m, _ := newTestManager(Config{MaxAttempts: 3})
	_, err := m.HandleEvent(context.Background(), community)
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestJoinExhaustsRetries(t *testing.T) {
	ch := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	ch.connect = func(context.Context) (platform.VoiceSession, error) {
		return nil, errors.New("gateway reset")
	}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{ch}}

	m, _ := newTestManager(Config{MaxAttempts: 3})
	_, err := m.HandleEvent(context.Background(), community)

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *ConnectError", err)
	}
	if connErr.Attempts != 3 || !connErr.Transient {
		t.Errorf("ConnectError = %+v, want 3 transient attempts", connErr)
	}
	if ch.connects != 3 {
		t.Errorf("connects = %d, want 3", ch.connects)
	}
	if m.Session("g1") != nil {
		t.Error("failed join must not leave a session record")
	}
}

func TestJoinPermanentErrorStopsImmediately(t *testing.T) {
	ch := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	ch.connect = func(context.Context) (platform.VoiceSession, error) {
		return nil, platform.ErrChannelGone
	}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{ch}}

	m, _ := newTestManager(Config{MaxAttempts: 3})
	_, err := m.HandleEvent(context.Background(), community)
	if err == nil {
		t.Fatal("expected error")
	}
	if ch.connects != 1 {
		t.Errorf("connects = %d, want 1 (no retry on permanent error)", ch.connects)
	}
}

func TestStartupGraceSuppressesJoin(t *testing.T) {
	ch := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{ch}}

	m := NewManager(Config{StartupGrace: 10 * time.Second}, testEngine())
	m.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := m.HandleEvent(context.Background(), community)
	if !errors.Is(err, ErrStartupGrace) {
		t.Fatalf("error = %v, want ErrStartupGrace", err)
	}
	if ch.connects != 0 {
		t.Error("no connect attempts during startup grace")
	}
}

// Two eligible actions inside the cooldown window must result in exactly
// one executed switch; the second is dropped, not queued.
func TestSwitchCooldownSuppressesSecondAction(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	gaming := &fakeChannel{id: "c2", name: "Gaming"}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general, gaming}}

	m, now := newTestManager(Config{SwitchCooldown: 30 * time.Second})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}

	// Crowd shifts to Gaming 5s later; move is eligible but inside cooldown.
	general.members = nil
	gaming.members = humans(3)
	*now = now.Add(5 * time.Second)

	decision, err := m.HandleEvent(context.Background(), community)
	if decision.Kind != presence.Move {
		t.Fatalf("decision = %v, want Move", decision.Kind)
	}
	if !errors.Is(err, ErrSwitchCooldown) {
		t.Fatalf("error = %v, want ErrSwitchCooldown", err)
	}
	if got := m.View("g1").ChannelID; got != "c1" {
		t.Errorf("channel = %q, want still c1", got)
	}

	// After the window the same decision executes.
	*now = now.Add(30 * time.Second)
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("move after cooldown: %v", err)
	}
	if got := m.View("g1").ChannelID; got != "c2" {
		t.Errorf("channel = %q, want c2", got)
	}
}

func TestMoveInvalidSessionReconnects(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	gaming := &fakeChannel{id: "c2", name: "Gaming"}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general, gaming}}

	m, now := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	transport := m.Session("g1").Transport.(*fakeTransport)
	transport.moveErr = platform.ErrSessionInvalid

	general.members = nil
	gaming.members = humans(2)
	*now = now.Add(time.Minute)

	decision, err := m.HandleEvent(context.Background(), community)
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if decision.Kind != presence.Move {
		t.Fatalf("decision = %v, want Move", decision.Kind)
	}
	if transport.forced != 1 {
		t.Errorf("forced disconnects = %d, want 1", transport.forced)
	}
	if gaming.connects != 1 {
		t.Errorf("fresh connects = %d, want 1", gaming.connects)
	}
	if got := m.View("g1").ChannelID; got != "c2" {
		t.Errorf("channel = %q, want c2 after reconnect", got)
	}
}

func TestLeaveForcesCleanupOnFailure(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, now := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	transport := m.Session("g1").Transport.(*fakeTransport)
	transport.disconnectErr = errors.New("gateway timeout")

	general.members = nil
	*now = now.Add(time.Minute)

	decision, err := m.HandleEvent(context.Background(), community)
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if decision.Kind != presence.Leave {
		t.Fatalf("decision = %v, want Leave", decision.Kind)
	}
	if transport.forced != 1 {
		t.Errorf("forced disconnects = %d, want 1", transport.forced)
	}
	if m.Session("g1") != nil {
		t.Error("session record must be dropped even when disconnect fails")
	}
}

func TestRejoinAfterInvalidSession(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(2)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, now := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	old := m.Session("g1")
	*now = now.Add(time.Minute)

	if err := m.Rejoin(context.Background(), community); err != nil {
		t.Fatalf("Rejoin() error = %v", err)
	}
	fresh := m.Session("g1")
	if fresh == nil || fresh.ID == old.ID {
		t.Error("expected a fresh session after rejoin")
	}
}

func TestReconcileCleansDeadSession(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(2)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, now := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	// Transport dies underneath the recorded session.
	m.Session("g1").Transport.(*fakeTransport).connected = false
	*now = now.Add(time.Minute)

	m.Reconcile(context.Background(), []platform.Community{community})

	fresh := m.Session("g1")
	if fresh == nil {
		t.Fatal("expected rejoin after dead session cleanup")
	}
	if !fresh.Transport.Connected() {
		t.Error("expected live transport after reconcile")
	}
	if general.connects != 2 {
		t.Errorf("connects = %d, want 2 (initial + reconcile)", general.connects)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(2)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, now := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	*now = now.Add(time.Minute)

	m.Reconcile(context.Background(), []platform.Community{community})
	m.Reconcile(context.Background(), []platform.Community{community})

	if general.connects != 1 {
		t.Errorf("connects = %d, want 1 (healthy session untouched)", general.connects)
	}
}

func TestRunJoinsAfterStartupGrace(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(2)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, _ := newTestManager(Config{StartupGrace: time.Nanosecond, HealthInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, func() []platform.Community { return []platform.Community{community} })

	deadline := time.Now().Add(5 * time.Second)
	for m.Session("g1") == nil {
		if time.Now().After(deadline) {
			t.Fatal("no session established by the startup reconciliation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShutdownDisconnectsSessions(t *testing.T) {
	general := &fakeChannel{id: "c1", name: "General", members: humans(1)}
	community := &fakeCommunity{id: "g1", name: "guild", channels: []platform.Channel{general}}

	m, _ := newTestManager(Config{})
	if _, err := m.HandleEvent(context.Background(), community); err != nil {
		t.Fatalf("initial join: %v", err)
	}
	transport := m.Session("g1").Transport.(*fakeTransport)

	m.Shutdown(context.Background())

	if transport.Connected() {
		t.Error("expected transport disconnected after shutdown")
	}
	if m.Session("g1") != nil {
		t.Error("expected session record cleared after shutdown")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.SwitchCooldown != DefaultSwitchCooldown {
		t.Errorf("SwitchCooldown = %v, want %v", cfg.SwitchCooldown, DefaultSwitchCooldown)
	}
	if cfg.StartupGrace != DefaultStartupGrace {
		t.Errorf("StartupGrace = %v, want %v", cfg.StartupGrace, DefaultStartupGrace)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"session invalid", platform.ErrSessionInvalid, false},
		{"channel gone", platform.ErrChannelGone, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unknown", errors.New("socket reset"), true},
		{"connect transient", &ConnectError{Transient: true, Cause: errors.New("x")}, true},
		{"connect permanent", &ConnectError{Cause: errors.New("x")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoffBounds(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second
	for i := 0; i < 50; i++ {
		d := calculateBackoff(base, max)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("backoff %v outside jitter bounds", d)
		}
	}
	if d := calculateBackoff(time.Minute, max); d > max {
		t.Errorf("backoff %v exceeds cap %v", d, max)
	}
}
