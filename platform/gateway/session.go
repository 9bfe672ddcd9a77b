package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bellhopd/bellhop/logger"
	"github.com/bellhopd/bellhop/platform"
)

// voiceSession is the agent's live voice connection in one community,
// implemented over gateway commands.
type voiceSession struct {
	client      *Client
	communityID string

	mu        sync.Mutex
	channelID string
	connected bool
	playing   bool
}

func (s *voiceSession) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

func (s *voiceSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.client.conn.IsConnected()
}

func (s *voiceSession) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// MoveTo switches the session to another channel in place.
func (s *voiceSession) MoveTo(ctx context.Context, ch platform.Channel) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return platform.ErrNotConnected
	}
	s.mu.Unlock()

	res, err := s.client.request(ctx, opVoiceOp, voiceOpPayload{
		Action:      actionMove,
		CommunityID: s.communityID,
		ChannelID:   ch.ID(),
	})
	if err != nil {
		return err
	}
	if err := resultError(res); err != nil {
		return err
	}

	s.mu.Lock()
	s.channelID = ch.ID()
	s.mu.Unlock()
	return nil
}

// Disconnect tears the session down. With force set, local state is dropped
// even if the gateway never acknowledges.
func (s *voiceSession) Disconnect(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	res, err := s.client.request(ctx, opVoiceOp, voiceOpPayload{
		Action:      actionLeave,
		CommunityID: s.communityID,
	})
	if err == nil {
		err = resultError(res)
	}

	if err != nil && !force {
		return err
	}

	s.mu.Lock()
	s.connected = false
	s.playing = false
	s.mu.Unlock()
	return nil
}

// Play starts playback of the artifact at path. The returned channel
// receives the completion result exactly once.
func (s *voiceSession) Play(path string) (<-chan error, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, platform.ErrNotConnected
	}
	if s.playing {
		s.mu.Unlock()
		return nil, platform.ErrAlreadyPlaying
	}
	s.playing = true
	s.mu.Unlock()

	data, err := json.Marshal(playPayload{CommunityID: s.communityID, Path: path})
	if err != nil {
		s.setPlaying(false)
		return nil, err
	}

	nonce := uuid.NewString()
	ack := make(chan resultPayload, 1)
	s.client.pendingMu.Lock()
	if s.client.pending == nil {
		s.client.pending = make(map[string]chan resultPayload)
	}
	s.client.pending[nonce] = ack
	s.client.pendingMu.Unlock()

	if err := s.client.conn.Send(envelope{Op: opPlay, Nonce: nonce, Data: data}); err != nil {
		s.dropPending(nonce)
		s.setPlaying(false)
		return nil, err
	}

	done := make(chan error, 1)
	go s.awaitPlayResult(nonce, ack, done)
	return done, nil
}

// awaitPlayResult resolves the completion channel exactly once.
func (s *voiceSession) awaitPlayResult(nonce string, ack <-chan resultPayload, done chan<- error) {
	defer s.dropPending(nonce)
	defer s.setPlaying(false)

	select {
	case res := <-ack:
		done <- resultError(res)
	case <-time.After(s.client.cfg.RequestTimeout + time.Minute):
		logger.Warn("playback result never arrived", "community", s.communityID)
		done <- platform.ErrNotConnected
	}
}

func (s *voiceSession) dropPending(nonce string) {
	s.client.pendingMu.Lock()
	delete(s.client.pending, nonce)
	s.client.pendingMu.Unlock()
}

func (s *voiceSession) setPlaying(v bool) {
	s.mu.Lock()
	s.playing = v
	s.mu.Unlock()
}
