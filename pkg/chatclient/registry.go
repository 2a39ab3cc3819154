package chatclient

import (
	"encoding/json"
	"log"
	"sync"

	"junqo-chat/pkg/protocol"
)

// Handler receives the raw data of a server event.
type Handler func(data json.RawMessage)

// Registry maps subscriber ids to one handler per event. Subscribing again
// for the same pair replaces the handler in place.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[string]Handler
	logger *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{subs: make(map[string]map[string]Handler), logger: logger}
}

func (r *Registry) Subscribe(subscriberID, event string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[subscriberID]; !ok {
		r.subs[subscriberID] = make(map[string]Handler)
	}
	r.subs[subscriberID][event] = handler
}

// Unsubscribe removes every handler of one subscriber.
func (r *Registry) Unsubscribe(subscriberID string) {
	r.mu.Lock()
	delete(r.subs, subscriberID)
	r.mu.Unlock()
}

// Clear removes every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]map[string]Handler)
	r.mu.Unlock()
}

// Count returns the number of handlers registered for event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, events := range r.subs {
		if _, ok := events[event]; ok {
			n++
		}
	}
	return n
}

// Dispatch invokes every handler registered for event and returns how many ran.
func (r *Registry) Dispatch(event string, data json.RawMessage) int {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.subs))
	for _, events := range r.subs {
		if h, ok := events[event]; ok {
			handlers = append(handlers, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return len(handlers)
}

// Subscriber is one component's handle on the registry. Close drops all of
// its handlers.
type Subscriber struct {
	id       string
	registry *Registry
}

// Subscriber returns the handle for id. Handles with the same id share handlers.
func (r *Registry) Subscriber(id string) *Subscriber {
	return &Subscriber{id: id, registry: r}
}

func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) OnReceiveMessage(fn func(protocol.Message)) *Subscriber {
	return on(s, protocol.EventReceiveMessage, fn)
}

func (s *Subscriber) OnMessageUpdated(fn func(protocol.Message)) *Subscriber {
	return on(s, protocol.EventMessageUpdated, fn)
}

func (s *Subscriber) OnMessageDeleted(fn func(protocol.MessageRef)) *Subscriber {
	return on(s, protocol.EventMessageDeleted, fn)
}

func (s *Subscriber) OnMessageRead(fn func(protocol.ReadEvent)) *Subscriber {
	return on(s, protocol.EventMessageRead, fn)
}

func (s *Subscriber) OnUserStartTyping(fn func(protocol.TypingEvent)) *Subscriber {
	return on(s, protocol.EventUserStartTyping, fn)
}

func (s *Subscriber) OnUserStopTyping(fn func(protocol.TypingEvent)) *Subscriber {
	return on(s, protocol.EventUserStopTyping, fn)
}

func (s *Subscriber) OnUserStatus(fn func(protocol.StatusEvent)) *Subscriber {
	return on(s, protocol.EventUserStatus, fn)
}

// OnError receives error frames that answer fire-and-forget events.
func (s *Subscriber) OnError(fn func(protocol.ErrorReply)) *Subscriber {
	return on(s, protocol.EventError, fn)
}

func (s *Subscriber) Close() {
	s.registry.Unsubscribe(s.id)
}

func on[T any](s *Subscriber, event string, fn func(T)) *Subscriber {
	logger := s.registry.logger
	s.registry.Subscribe(s.id, event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Printf("chatclient: decode %s failed: subscriber=%s err=%v", event, s.id, err)
			return
		}
		fn(v)
	})
	return s
}
