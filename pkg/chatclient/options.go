// Package chatclient is the Go client of the messaging gateway: a session
// owning one authenticated socket, a subscription registry for server
// events, and request helpers for the client events.
package chatclient

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultRequestTimeout       = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	// URL of the gateway, e.g. ws://localhost:8083/ws.
	URL                  string
	Dialer               *websocket.Dialer
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	RequestTimeout       time.Duration
	Logger               *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}
