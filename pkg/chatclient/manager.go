package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"junqo-chat/pkg/protocol"
)

const writeWait = 10 * time.Second

var ErrNotConnected = errors.New("chatclient: socket not connected")

// State of the managed socket.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// ConnectionManager ties the socket lifecycle to authentication state. Only
// SetAuthenticated opens or closes the socket; drops are retried a bounded
// number of times.
type ConnectionManager struct {
	opts    Options
	onFrame func(protocol.Frame)

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	ready  chan struct{}

	writeMu sync.Mutex
	dials   atomic.Int64
}

// NewConnectionManager builds a manager that hands every inbound frame to onFrame.
func NewConnectionManager(opts Options, onFrame func(protocol.Frame)) *ConnectionManager {
	return &ConnectionManager{
		opts:    opts.withDefaults(),
		onFrame: onFrame,
		ready:   make(chan struct{}),
	}
}

// SetAuthenticated connects when authenticated is true and no socket is live
// or being dialed, and disconnects when it is false.
func (m *ConnectionManager) SetAuthenticated(authenticated bool, token string) {
	if !authenticated {
		m.disconnect()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisconnected {
		return
	}
	m.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx, token)
}

// State returns the current socket state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dials returns the number of dial attempts made so far.
func (m *ConnectionManager) Dials() int {
	return int(m.dials.Load())
}

// WaitConnected blocks until the socket is connected or ctx is done.
func (m *ConnectionManager) WaitConnected(ctx context.Context) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes a frame on the live socket.
func (m *ConnectionManager) Send(frame protocol.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (m *ConnectionManager) disconnect() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"), time.Now().Add(writeWait))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
}

func (m *ConnectionManager) run(ctx context.Context, token string) {
	failures := 0
	for {
		conn, err := m.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.opts.Logger.Printf("chatclient: dial failed: attempt=%d err=%v", failures, err)
			if failures > m.opts.MaxReconnectAttempts {
				m.opts.Logger.Printf("chatclient: giving up after %d reconnect attempts", m.opts.MaxReconnectAttempts)
				m.abandon(ctx)
				return
			}
			if !sleep(ctx, m.opts.ReconnectDelay) {
				return
			}
			continue
		}

		if !m.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		failures = 0

		err = m.readLoop(conn)
		if ctx.Err() != nil {
			return
		}
		m.opts.Logger.Printf("chatclient: connection lost: %v", err)
		m.detach(ctx, conn)
		failures++
		if failures > m.opts.MaxReconnectAttempts {
			m.abandon(ctx)
			return
		}
		if !sleep(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

func (m *ConnectionManager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	m.dials.Add(1)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (m *ConnectionManager) attach(ctx context.Context, conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.conn = conn
	m.setStateLocked(StateConnected)
	return true
}

func (m *ConnectionManager) detach(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || m.conn != conn {
		return
	}
	m.conn = nil
	m.setStateLocked(StateConnecting)
	_ = conn.Close()
}

func (m *ConnectionManager) abandon(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.conn = nil
	m.setStateLocked(StateDisconnected)
}

func (m *ConnectionManager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.opts.Logger.Printf("chatclient: dropping malformed frame: %v", err)
			continue
		}
		if m.onFrame != nil {
			m.onFrame(frame)
		}
	}
}

// setStateLocked keeps ready closed exactly while connected.
func (m *ConnectionManager) setStateLocked(state State) {
	if state == m.state {
		return
	}
	if state == StateConnected {
		close(m.ready)
	} else if m.state == StateConnected {
		m.ready = make(chan struct{})
	}
	m.state = state
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
