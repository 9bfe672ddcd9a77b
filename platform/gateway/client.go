package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bellhopd/bellhop/logger"
	"github.com/bellhopd/bellhop/platform"
)

// Client defaults.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectMax   = 60 * time.Second
)

// Config configures the gateway client.
type Config struct {
	// URL is the gateway websocket endpoint.
	URL string

	// Token authenticates the agent.
	Token string

	// RequestTimeout bounds each command round-trip.
	RequestTimeout time.Duration

	// Heartbeat is the ping interval. Defaults to DefaultHeartbeat.
	Heartbeat time.Duration

	// ReconnectBase and ReconnectMax bound the reconnect backoff.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func (c *Config) defaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = DefaultReconnectBase
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
}

// Client speaks the gateway protocol and keeps a live membership view.
// Events are delivered to the handler; the view backs the Community and
// Channel interfaces handed out to the rest of the agent.
type Client struct {
	cfg     Config
	conn    *Conn
	handler platform.EventHandler

	mu          sync.RWMutex
	communities map[string]*community

	pendingMu sync.Mutex
	pending   map[string]chan resultPayload
}

// NewClient creates a gateway client delivering events to handler.
func NewClient(cfg Config, handler platform.EventHandler) *Client {
	cfg.defaults()
	return &Client{
		cfg:         cfg,
		conn:        NewConn(&ConnConfig{URL: cfg.URL}),
		handler:     handler,
		communities: make(map[string]*community),
	}
}

// Run connects and processes gateway events until ctx is done, reconnecting
// with capped backoff after socket failures.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectBase

	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("gateway connection lost, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
		c.conn.Reset()
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	defer c.conn.Close()

	if err := c.identify(); err != nil {
		return err
	}
	c.conn.StartHeartbeat(ctx, c.cfg.Heartbeat)

	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.conn.ReceiveLoop(ctx, msgCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case data := <-msgCh:
			c.dispatch(data)
		}
	}
}

func (c *Client) identify() error {
	data, err := json.Marshal(identifyPayload{Token: c.cfg.Token})
	if err != nil {
		return err
	}
	return c.conn.Send(envelope{Op: opIdentify, Data: data})
}

// dispatch routes one gateway message. Malformed messages are logged and
// dropped; one bad frame must not kill the connection.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("malformed gateway frame", "error", err)
		return
	}

	switch env.Op {
	case opReady:
		c.handleReady(env.Data)
	case opVoiceState:
		c.handleVoiceState(env.Data)
	case opVoiceResult, opPlayResult:
		c.resolve(env)
	default:
		logger.Debug("ignoring gateway op", "op", env.Op)
	}
}

func (c *Client) handleReady(data json.RawMessage) {
	var payload readyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn("malformed ready payload", "error", err)
		return
	}

	c.mu.Lock()
	c.communities = make(map[string]*community, len(payload.Communities))
	views := make([]platform.Community, 0, len(payload.Communities))
	for _, cp := range payload.Communities {
		g := &community{client: c, id: cp.ID, name: cp.Name}
		for _, chp := range cp.Channels {
			ch := &channel{client: c, communityID: cp.ID, id: chp.ID, name: chp.Name}
			for _, mp := range chp.Members {
				ch.members = append(ch.members, mp.toMember())
			}
			g.channels = append(g.channels, ch)
		}
		c.communities[cp.ID] = g
		views = append(views, g)
	}
	c.mu.Unlock()

	logger.Info("gateway ready", "communities", len(views))
	if c.handler != nil {
		c.handler.HandleReady(views)
	}
}

func (c *Client) handleVoiceState(data json.RawMessage) {
	var payload voiceStatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn("malformed voice state payload", "error", err)
		return
	}

	c.mu.Lock()
	g, ok := c.communities[payload.CommunityID]
	if !ok {
		c.mu.Unlock()
		logger.Debug("voice state for unknown community",
			"community", payload.CommunityID)
		return
	}

	member := payload.Member.toMember()
	var previous, next *channel
	if payload.PreviousChannelID != "" {
		previous = g.channelByID(payload.PreviousChannelID)
		if previous != nil {
			previous.removeMember(member.ID)
		}
	}
	if payload.NextChannelID != "" {
		next = g.channelByID(payload.NextChannelID)
		if next != nil {
			next.addMember(member)
		}
	}
	c.mu.Unlock()

	if c.handler == nil {
		return
	}
	change := &platform.MembershipChange{
		Community: g,
		Member:    member,
		At:        time.Now(),
	}
	if previous != nil {
		change.Previous = previous
	}
	if next != nil {
		change.Next = next
	}
	c.handler.HandleMembershipChange(change)
}

// Communities returns the current membership view.
func (c *Client) Communities() []platform.Community {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]platform.Community, 0, len(c.communities))
	for _, g := range c.communities {
		out = append(out, g)
	}
	return out
}

// request sends a command and waits for its acknowledgement.
func (c *Client) request(ctx context.Context, op string, payload any) (resultPayload, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return resultPayload{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	nonce := uuid.NewString()
	ch := make(chan resultPayload, 1)
	c.pendingMu.Lock()
	if c.pending == nil {
		c.pending = make(map[string]chan resultPayload)
	}
	c.pending[nonce] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, nonce)
		c.pendingMu.Unlock()
	}()

	if err := c.conn.Send(envelope{Op: op, Nonce: nonce, Data: data}); err != nil {
		return resultPayload{}, err
	}

	select {
	case <-ctx.Done():
		return resultPayload{}, ctx.Err()
	case <-time.After(c.cfg.RequestTimeout):
		return resultPayload{}, context.DeadlineExceeded
	case res := <-ch:
		return res, nil
	}
}

func (c *Client) resolve(env envelope) {
	var res resultPayload
	if err := json.Unmarshal(env.Data, &res); err != nil {
		logger.Warn("malformed result payload", "error", err)
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[env.Nonce]
	c.pendingMu.Unlock()
	if !ok {
		logger.Debug("result for unknown nonce", "nonce", env.Nonce)
		return
	}
	ch <- res
}

// resultError maps a command acknowledgement onto platform errors.
func resultError(res resultPayload) error {
	if res.OK {
		return nil
	}
	switch res.Code {
	case codeSessionInvalid:
		return platform.ErrSessionInvalid
	case codeChannelGone:
		return platform.ErrChannelGone
	default:
		return fmt.Errorf("gateway rejected command: %s (%s)", res.Error, res.Code)
	}
}
