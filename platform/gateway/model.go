package gateway

import (
	"context"
	"sync"

	"github.com/bellhopd/bellhop/platform"
)

// community is the client-side view of one community.
type community struct {
	client   *Client
	id       string
	name     string
	channels []*channel
}

func (g *community) ID() string   { return g.id }
func (g *community) Name() string { return g.name }

func (g *community) VoiceChannels() []platform.Channel {
	out := make([]platform.Channel, len(g.channels))
	for i, ch := range g.channels {
		out[i] = ch
	}
	return out
}

// channelByID finds a channel in this community. Caller holds client.mu.
func (g *community) channelByID(id string) *channel {
	for _, ch := range g.channels {
		if ch.id == id {
			return ch
		}
	}
	return nil
}

// channel is the client-side view of one voice channel. Its member list is
// maintained from gateway snapshots and voice state events.
type channel struct {
	client      *Client
	communityID string
	id          string
	name        string

	memberMu sync.RWMutex
	members  []platform.Member
}

func (c *channel) ID() string   { return c.id }
func (c *channel) Name() string { return c.name }

func (c *channel) Members() []platform.Member {
	c.memberMu.RLock()
	defer c.memberMu.RUnlock()
	return append([]platform.Member(nil), c.members...)
}

func (c *channel) addMember(m platform.Member) {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()
	for i, existing := range c.members {
		if existing.ID == m.ID {
			c.members[i] = m
			return
		}
	}
	c.members = append(c.members, m)
}

func (c *channel) removeMember(id string) {
	c.memberMu.Lock()
	defer c.memberMu.Unlock()
	for i, existing := range c.members {
		if existing.ID == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return
		}
	}
}

// Connect opens a voice session in this channel through the gateway.
func (c *channel) Connect(ctx context.Context) (platform.VoiceSession, error) {
	res, err := c.client.request(ctx, opVoiceOp, voiceOpPayload{
		Action:      actionJoin,
		CommunityID: c.communityID,
		ChannelID:   c.id,
	})
	if err != nil {
		return nil, err
	}
	if err := resultError(res); err != nil {
		return nil, err
	}

	return &voiceSession{
		client:      c.client,
		communityID: c.communityID,
		channelID:   c.id,
		connected:   true,
	}, nil
}
