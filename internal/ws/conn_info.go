package ws

import "time"

// ConnInfo is the identity attached to a socket at handshake time.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
