package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"junqo-chat/internal/observability"
	"junqo-chat/pkg/protocol"
)

const relayTimeout = 2 * time.Second

// RelayEnvelope carries an encoded frame between nodes. An empty Room means
// every socket on the node.
type RelayEnvelope struct {
	Node    string          `json:"node"`
	Room    string          `json:"room,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay forwards broadcasts to other gateway nodes.
type Relay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
}

// Hub maintains active sockets and the conversation rooms they joined.
type Hub struct {
	node      string
	conns     map[string]*Connection
	rooms     map[string]map[string]*Connection
	connRooms map[string]map[string]struct{}
	users     map[string]int
	relay     Relay
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		node:      uuid.NewString(),
		conns:     make(map[string]*Connection),
		rooms:     make(map[string]map[string]*Connection),
		connRooms: make(map[string]map[string]struct{}),
		users:     make(map[string]int),
	}
}

// Node identifies this hub in relayed envelopes.
func (h *Hub) Node() string {
	return h.node
}

// SetRelay enables cross-node fan-out.
func (h *Hub) SetRelay(relay Relay) {
	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
}

// Register tracks a connected socket.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.connRooms[conn.ID] = make(map[string]struct{})
	h.users[conn.UserID()]++
	users := len(h.users)
	h.mu.Unlock()

	observability.SetWSOnlineUsers(users)
}

// Unregister drops a socket from the hub and from every room it joined.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.ID)
	for roomID := range h.connRooms[conn.ID] {
		h.leaveLocked(roomID, conn.ID)
	}
	delete(h.connRooms, conn.ID)
	if h.users[conn.UserID()]--; h.users[conn.UserID()] <= 0 {
		delete(h.users, conn.UserID())
	}
	users := len(h.users)
	h.mu.Unlock()

	observability.SetWSOnlineUsers(users)
}

// Join adds the socket to a conversation room. It reports false for unknown sockets.
func (h *Hub) Join(conversationID string, conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return false
	}
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*Connection)
	}
	h.rooms[conversationID][conn.ID] = conn
	h.connRooms[conn.ID][conversationID] = struct{}{}
	return true
}

// Leave removes the socket from a conversation room.
func (h *Hub) Leave(conversationID string, conn *Connection) {
	h.mu.Lock()
	h.leaveLocked(conversationID, conn.ID)
	h.mu.Unlock()
}

// InRoom reports whether the socket joined the conversation.
func (h *Hub) InRoom(conversationID, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][connID]
	return ok
}

// RoomSize returns the number of local sockets in a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// LocalUsers returns the users with at least one socket on this node.
func (h *Hub) LocalUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.users))
	for userID := range h.users {
		users = append(users, userID)
	}
	return users
}

// BroadcastRoom sends event to every socket in the room except excludeConnID
// and returns the number of local deliveries.
func (h *Hub) BroadcastRoom(conversationID, event string, data any, excludeConnID string) int {
	payload, err := protocol.Encode(event, "", data)
	if err != nil {
		log.Printf("websocket encode error: event=%s err=%v", event, err)
		return 0
	}
	delivered := h.deliver(h.roomMembers(conversationID), event, payload, excludeConnID)
	h.forward(RelayEnvelope{Room: conversationID, Exclude: excludeConnID, Event: event, Payload: payload})
	return delivered
}

// BroadcastAll sends event to every connected socket except excludeConnID.
func (h *Hub) BroadcastAll(event string, data any, excludeConnID string) int {
	payload, err := protocol.Encode(event, "", data)
	if err != nil {
		log.Printf("websocket encode error: event=%s err=%v", event, err)
		return 0
	}
	delivered := h.deliver(h.allMembers(), event, payload, excludeConnID)
	h.forward(RelayEnvelope{Exclude: excludeConnID, Event: event, Payload: payload})
	return delivered
}

// DeliverRemote replays a frame relayed by another node. Envelopes from this
// node are ignored.
func (h *Hub) DeliverRemote(env RelayEnvelope) int {
	if env.Node == h.node {
		return 0
	}
	targets := h.allMembers()
	if env.Room != "" {
		targets = h.roomMembers(env.Room)
	}
	return h.deliver(targets, env.Event, env.Payload, env.Exclude)
}

// Close terminates every tracked socket.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Connection)
	h.rooms = make(map[string]map[string]*Connection)
	h.connRooms = make(map[string]map[string]struct{})
	h.users = make(map[string]int)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
	observability.SetWSOnlineUsers(0)
}

func (h *Hub) deliver(targets []*Connection, event string, payload []byte, excludeConnID string) int {
	delivered := 0
	for _, conn := range targets {
		if excludeConnID != "" && conn.ID == excludeConnID {
			continue
		}
		if err := conn.Send(payload); err != nil {
			log.Printf("websocket send error: conn_id=%s user_id=%s err=%v", conn.ID, conn.UserID(), err)
			h.publishWSError(conn, err)
			continue
		}
		delivered++
	}
	observability.AddWSDeliveries(event, delivered)
	return delivered
}

func (h *Hub) forward(env RelayEnvelope) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return
	}

	env.Node = h.node
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := relay.Publish(ctx, env); err != nil {
		log.Printf("websocket relay publish failed: event=%s room=%s err=%v", env.Event, env.Room, err)
	}
}

func (h *Hub) roomMembers(conversationID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	members := make([]*Connection, 0, len(room))
	for _, conn := range room {
		members = append(members, conn)
	}
	return members
}

func (h *Hub) allMembers() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		members = append(members, conn)
	}
	return members
}

func (h *Hub) leaveLocked(conversationID, connID string) {
	if conns, ok := h.rooms[conversationID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.connRooms[connID]; ok {
		delete(rooms, conversationID)
	}
}

func (h *Hub) publishWSError(conn *Connection, err error) {
	info := conn.Info
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, lifecycleEnvelope("ws_error", info, err.Error()), headers)
	observability.IncWSEvent("ws_error", "send_failed")
}
