package chatclient

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"junqo-chat/pkg/protocol"
)

// fakeGateway answers client events the way the gateway does, with knobs for
// rejecting handshakes and delaying replies.
type fakeGateway struct {
	srv      *httptest.Server
	reject   atomic.Bool
	accepted atomic.Int64
	active   atomic.Int64

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
	delay   map[string]time.Duration
	mute    map[string]bool
	befores []string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		conns: make(map[*websocket.Conn]*sync.Mutex),
		delay: make(map[string]time.Duration),
		mute:  make(map[string]bool),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.reject.Load() || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.accepted.Add(1)
		g.active.Add(1)
		g.mu.Lock()
		g.conns[conn] = &sync.Mutex{}
		g.mu.Unlock()
		go g.serve(conn)
	}))
	t.Cleanup(func() {
		g.dropAll()
		g.srv.Close()
	})
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
}

func (g *fakeGateway) serve(conn *websocket.Conn) {
	defer func() {
		g.mu.Lock()
		delete(g.conns, conn)
		g.mu.Unlock()
		g.active.Add(-1)
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		go g.answer(conn, frame)
	}
}

func (g *fakeGateway) answer(conn *websocket.Conn, frame protocol.Frame) {
	g.mu.Lock()
	delay, mute := g.delay[frame.Event], g.mute[frame.Event]
	g.mu.Unlock()
	if mute {
		return
	}

	switch frame.Event {
	case protocol.EventJoinRoom:
		var req protocol.ConversationRef
		_ = frame.Decode(&req)
		g.write(conn, protocol.EventJoinedRoom, frame.RequestID, req)
	case protocol.EventSendMessage:
		var req protocol.SendMessagePayload
		_ = frame.Decode(&req)
		if req.Content == "fail" {
			g.write(conn, protocol.EventError, frame.RequestID, protocol.ErrorReply{Code: protocol.CodeInternal, Message: "internal error"})
			return
		}
		now := time.Now().UTC()
		g.write(conn, protocol.EventMessageSent, frame.RequestID, protocol.Message{
			ID: "m-" + req.Content, ConversationID: req.ConversationID, SenderID: "A", Content: req.Content, CreatedAt: now, UpdatedAt: now,
		})
	case protocol.EventGetMessageHistory:
		var req protocol.HistoryRequest
		_ = frame.Decode(&req)
		g.mu.Lock()
		g.befores = append(g.befores, req.Before)
		g.mu.Unlock()
		if d, ok := g.delayFor(req.ConversationID); ok {
			time.Sleep(d)
		} else {
			time.Sleep(delay)
		}
		g.write(conn, protocol.EventMessageHistory, frame.RequestID, protocol.MessageHistory{
			ConversationID: req.ConversationID,
			Messages:       []protocol.Message{{ID: "m-" + req.ConversationID, ConversationID: req.ConversationID}},
		})
	case protocol.EventGetOnlineUsers:
		time.Sleep(delay)
		g.write(conn, protocol.EventOnlineUsers, frame.RequestID, protocol.OnlineUsersReply{UserIDs: []string{"A"}})
	}
}

// historyCursors returns the before values of every history request seen.
func (g *fakeGateway) historyCursors() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.befores...)
}

func (g *fakeGateway) delayFor(conversationID string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.delay["history:"+conversationID]
	return d, ok
}

func (g *fakeGateway) set(key string, delay time.Duration, mute bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay[key] = delay
	g.mute[key] = mute
}

func (g *fakeGateway) write(conn *websocket.Conn, event, requestID string, data any) {
	payload, err := protocol.Encode(event, requestID, data)
	if err != nil {
		return
	}
	g.mu.Lock()
	lock, ok := g.conns[conn]
	g.mu.Unlock()
	if !ok {
		return
	}
	lock.Lock()
	defer lock.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

// push broadcasts a server event to every connected socket.
func (g *fakeGateway) push(event string, data any) {
	g.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(g.conns))
	for conn := range g.conns {
		conns = append(conns, conn)
	}
	g.mu.Unlock()
	for _, conn := range conns {
		g.write(conn, event, "", data)
	}
}

// dropAll closes every server-side socket without a close frame.
func (g *fakeGateway) dropAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for conn := range g.conns {
		conn.Close()
	}
}

func quietOptions(url string) Options {
	return Options{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	}
}
