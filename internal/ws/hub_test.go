package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junqo-chat/pkg/protocol"
)

func testConn(id, userID string) *Connection {
	return NewConnection(nil, ConnInfo{ConnID: id, UserID: userID})
}

func drain(c *Connection) []protocol.Frame {
	var frames []protocol.Frame
	for {
		select {
		case payload := <-c.send:
			var f protocol.Frame
			_ = json.Unmarshal(payload, &f)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

type recordingRelay struct {
	mu   sync.Mutex
	envs []RelayEnvelope
}

func (r *recordingRelay) Publish(_ context.Context, env RelayEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func TestHubJoinAndUnregister(t *testing.T) {
	hub := NewHub()
	a := testConn("a", "A")
	hub.Register(a)

	assert.True(t, hub.Join("c1", a))
	assert.True(t, hub.Join("c2", a))
	assert.Equal(t, 1, hub.RoomSize("c1"))

	hub.Unregister(a)
	assert.Equal(t, 0, hub.RoomSize("c1"))
	assert.Equal(t, 0, hub.RoomSize("c2"))
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.LocalUsers())
}

func TestHubJoinUnknownConnection(t *testing.T) {
	hub := NewHub()
	assert.False(t, hub.Join("c1", testConn("ghost", "G")))
	assert.Equal(t, 0, hub.RoomSize("c1"))
}

func TestHubBroadcastExcludesOrigin(t *testing.T) {
	hub := NewHub()
	a, b, outsider := testConn("a", "A"), testConn("b", "B"), testConn("x", "X")
	for _, c := range []*Connection{a, b, outsider} {
		hub.Register(c)
	}
	hub.Join("c1", a)
	hub.Join("c1", b)

	n := hub.BroadcastRoom("c1", protocol.EventReceiveMessage, map[string]string{"content": "hi"}, "a")
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(outsider))

	frames := drain(b)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventReceiveMessage, frames[0].Event)
	assert.JSONEq(t, `{"content":"hi"}`, string(frames[0].Data))
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	b := testConn("b", "B")
	hub.Register(b)
	hub.Join("c1", b)
	hub.Leave("c1", b)

	assert.Equal(t, 0, hub.BroadcastRoom("c1", protocol.EventReceiveMessage, nil, ""))
	assert.Empty(t, drain(b))
	assert.False(t, hub.InRoom("c1", "b"))
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()
	a, b := testConn("a", "A"), testConn("b", "B")
	hub.Register(a)
	hub.Register(b)

	n := hub.BroadcastAll(protocol.EventUserStatus, protocol.StatusEvent{UserID: "A", Status: protocol.StatusOnline}, "a")
	assert.Equal(t, 1, n)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(a))
}

func TestHubRelayRoundTrip(t *testing.T) {
	relay := &recordingRelay{}
	origin := NewHub()
	origin.SetRelay(relay)
	remote := NewHub()

	b := testConn("b", "B")
	remote.Register(b)
	remote.Join("c1", b)

	origin.BroadcastRoom("c1", protocol.EventReceiveMessage, map[string]string{"id": "m1"}, "a")
	require.Len(t, relay.envs, 1)
	env := relay.envs[0]
	assert.Equal(t, origin.Node(), env.Node)
	assert.Equal(t, "c1", env.Room)

	assert.Equal(t, 0, origin.DeliverRemote(env))
	assert.Equal(t, 1, remote.DeliverRemote(env))
	frames := drain(b)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventReceiveMessage, frames[0].Event)
}

func TestConnectionSendOverflowCloses(t *testing.T) {
	c := testConn("a", "A")
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.ErrorIs(t, c.Send([]byte("x")), errSendOverflow)

	select {
	case <-c.Done():
	default:
		t.Fatal("expected connection to be closed")
	}
	assert.ErrorIs(t, c.Send([]byte("x")), errConnClosed)
}

func TestMemoryPresenceCounts(t *testing.T) {
	p := NewMemoryPresence()
	ctx := context.Background()

	first, _ := p.Connect(ctx, "A")
	assert.True(t, first)
	first, _ = p.Connect(ctx, "A")
	assert.False(t, first)

	last, _ := p.Disconnect(ctx, "A")
	assert.False(t, last)
	online, _ := p.Online(ctx)
	assert.Equal(t, []string{"A"}, online)

	last, _ = p.Disconnect(ctx, "A")
	assert.True(t, last)
	online, _ = p.Online(ctx)
	assert.Empty(t, online)
}
