package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellhopd/bellhop/platform"
)

// wsUpgrader is the test websocket upgrader.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsURL converts an HTTP test server URL to a websocket URL.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// echoServer returns a test server that echoes websocket messages back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

// scriptServer runs script against each incoming gateway connection.
func scriptServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
}

func rawJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// recordingHandler captures events delivered by the client.
type recordingHandler struct {
	mu      sync.Mutex
	ready   [][]platform.Community
	changes []*platform.MembershipChange
}

func (h *recordingHandler) HandleMembershipChange(change *platform.MembershipChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, change)
}

func (h *recordingHandler) HandleReady(communities []platform.Community) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, communities)
}

func (h *recordingHandler) readyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ready)
}

func (h *recordingHandler) changeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.changes)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConn_ConnectAndSendReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := NewConn(&ConnConfig{URL: wsURL(srv)})
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	msg := map[string]string{"hello": "world"}
	require.NoError(t, c.Send(msg))

	data, err := c.Receive(ctx)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "world", got["hello"])
}

func TestConn_CloseIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := NewConn(&ConnConfig{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.IsConnected())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func sampleReady() envelope {
	return envelope{Op: opReady, Data: rawJSON(readyPayload{
		Communities: []communityPayload{
			{
				ID:   "g1",
				Name: "guild",
				Channels: []channelPayload{
					{
						ID:   "c1",
						Name: "General",
						Members: []memberPayload{
							{ID: "m1", DisplayName: "Ana", Discriminator: "1234"},
						},
					},
					{ID: "c2", Name: "Gaming"},
				},
			},
		},
	})}
}

func TestClientReadyBuildsMembershipView(t *testing.T) {
	handler := &recordingHandler{}

	srv := scriptServer(t, func(conn *websocket.Conn) {
		// Consume identify, then deliver the snapshot.
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteJSON(sampleReady())
		// Hold the socket open.
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	client := NewClient(Config{URL: wsURL(srv), Token: "tok"}, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool { return handler.readyCount() > 0 }, "timeout waiting for ready")

	communities := client.Communities()
	require.Len(t, communities, 1)
	assert.Equal(t, "g1", communities[0].ID())
	assert.Equal(t, "guild", communities[0].Name())

	channels := communities[0].VoiceChannels()
	require.Len(t, channels, 2)
	assert.Equal(t, "General", channels[0].Name())
	require.Len(t, channels[0].Members(), 1)
	assert.Equal(t, "Ana", channels[0].Members()[0].DisplayName)
}

func TestClientVoiceStateUpdatesView(t *testing.T) {
	handler := &recordingHandler{}

	srv := scriptServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteJSON(sampleReady())
		// Ana moves from General to Gaming.
		_ = conn.WriteJSON(envelope{Op: opVoiceState, Data: rawJSON(voiceStatePayload{
			CommunityID:       "g1",
			Member:            memberPayload{ID: "m1", DisplayName: "Ana", Discriminator: "1234"},
			PreviousChannelID: "c1",
			NextChannelID:     "c2",
		})})
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	client := NewClient(Config{URL: wsURL(srv), Token: "tok"}, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool { return handler.changeCount() > 0 }, "timeout waiting for voice state")

	handler.mu.Lock()
	change := handler.changes[0]
	handler.mu.Unlock()

	assert.Equal(t, platform.MemberMoved, change.Kind())
	assert.Equal(t, "c1", change.Previous.ID())
	assert.Equal(t, "c2", change.Next.ID())

	communities := client.Communities()
	require.Len(t, communities, 1)
	channels := communities[0].VoiceChannels()
	assert.Empty(t, channels[0].Members(), "Ana left General")
	require.Len(t, channels[1].Members(), 1)
	assert.Equal(t, "m1", channels[1].Members()[0].ID)
}

// commandServer acknowledges every voice_op and play command with result.
func commandServer(t *testing.T, result resultPayload) (*httptest.Server, *recordingHandler, func() *Client) {
	handler := &recordingHandler{}

	srv := scriptServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage() // identify
		if err != nil {
			return
		}
		_ = conn.WriteJSON(sampleReady())
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			resultOp := opVoiceResult
			if env.Op == opPlay {
				resultOp = opPlayResult
			}
			_ = conn.WriteJSON(envelope{
				Op:    resultOp,
				Nonce: env.Nonce,
				Data:  rawJSON(result),
			})
		}
	})

	newClient := func() *Client {
		return NewClient(Config{URL: wsURL(srv), Token: "tok", RequestTimeout: 2 * time.Second}, handler)
	}
	return srv, handler, newClient
}

func TestChannelConnectAndSession(t *testing.T) {
	srv, handler, newClient := commandServer(t, resultPayload{OK: true})
	defer srv.Close()

	client := newClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool { return handler.readyCount() > 0 }, "timeout waiting for ready")

	channels := client.Communities()[0].VoiceChannels()
	session, err := channels[0].Connect(ctx)
	require.NoError(t, err)
	assert.True(t, session.Connected())
	assert.Equal(t, "c1", session.ChannelID())

	// Move updates the session's channel.
	require.NoError(t, session.MoveTo(ctx, channels[1]))
	assert.Equal(t, "c2", session.ChannelID())

	// Play resolves its completion channel exactly once.
	done, err := session.Play("/tmp/speech.mp3")
	require.NoError(t, err)
	select {
	case playErr := <-done:
		assert.NoError(t, playErr)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for play result")
	}
	assert.False(t, session.Playing())

	require.NoError(t, session.Disconnect(ctx, false))
	assert.False(t, session.Connected())
}

func TestSessionInvalidMapsToPlatformError(t *testing.T) {
	srv, handler, newClient := commandServer(t, resultPayload{OK: false, Code: codeSessionInvalid, Error: "stale"})
	defer srv.Close()

	client := newClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, func() bool { return handler.readyCount() > 0 }, "timeout waiting for ready")

	channels := client.Communities()[0].VoiceChannels()
	_, err := channels[0].Connect(ctx)
	assert.ErrorIs(t, err, platform.ErrSessionInvalid)
}

func TestResultError(t *testing.T) {
	tests := []struct {
		name string
		res  resultPayload
		want error
	}{
		{"ok", resultPayload{OK: true}, nil},
		{"session invalid", resultPayload{Code: codeSessionInvalid}, platform.ErrSessionInvalid},
		{"channel gone", resultPayload{Code: codeChannelGone}, platform.ErrChannelGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resultError(tt.res)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
