package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"junqo-chat/pkg/protocol"
)

var ErrSessionClosed = errors.New("chatclient: session logged out")

// ServerError is an error frame returned for a request.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("chatclient: %s: %s", e.Code, e.Message)
}

// Session is the application-owned root of the client: it holds the
// connection manager, the subscription registry and the pending requests.
type Session struct {
	opts     Options
	manager  *ConnectionManager
	registry *Registry
	events   *eventQueue

	mu      sync.Mutex
	pending map[string]chan protocol.Frame
}

func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		opts:     opts,
		registry: NewRegistry(opts.Logger),
		pending:  make(map[string]chan protocol.Frame),
	}
	s.events = newEventQueue(s.registry)
	s.manager = NewConnectionManager(opts, s.handleFrame)
	return s
}

func (s *Session) Manager() *ConnectionManager {
	return s.manager
}

func (s *Session) Registry() *Registry {
	return s.registry
}

// Subscribe returns the subscriber handle for a component id.
func (s *Session) Subscribe(subscriberID string) *Subscriber {
	return s.registry.Subscriber(subscriberID)
}

// Login marks the session authenticated and opens the socket if none is live.
func (s *Session) Login(token string) {
	s.manager.SetAuthenticated(true, token)
}

// Logout drops every subscription, fails pending requests and closes the socket.
func (s *Session) Logout() {
	s.registry.Clear()
	s.manager.SetAuthenticated(false, "")
	s.failPending()
}

// Close logs out and stops event delivery for good.
func (s *Session) Close() {
	s.Logout()
	s.events.stop()
}

// WaitConnected blocks until the socket is up.
func (s *Session) WaitConnected(ctx context.Context) error {
	return s.manager.WaitConnected(ctx)
}

func (s *Session) JoinRoom(ctx context.Context, conversationID string) error {
	_, err := s.request(ctx, protocol.EventJoinRoom, protocol.ConversationRef{ConversationID: conversationID}, protocol.EventJoinedRoom)
	return err
}

func (s *Session) LeaveRoom(conversationID string) error {
	return s.emit(protocol.EventLeaveRoom, protocol.ConversationRef{ConversationID: conversationID})
}

// SendMessage sends content and returns the stored message.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string) (protocol.Message, error) {
	var msg protocol.Message
	frame, err := s.request(ctx, protocol.EventSendMessage, protocol.SendMessagePayload{ConversationID: conversationID, Content: content}, protocol.EventMessageSent)
	if err != nil {
		return msg, err
	}
	err = frame.Decode(&msg)
	return msg, err
}

// SendOptimistic shows content in tl immediately and reconciles it with the
// stored message, or removes it when the send fails.
func (s *Session) SendOptimistic(ctx context.Context, tl *Timeline, senderID, content string) (protocol.Message, error) {
	tempID := tl.AppendPending(senderID, content)
	msg, err := s.SendMessage(ctx, tl.ConversationID(), content)
	if err != nil {
		tl.Revert(tempID)
		return protocol.Message{}, err
	}
	tl.Confirm(tempID, msg)
	return msg, nil
}

func (s *Session) StartTyping(conversationID string) error {
	return s.emit(protocol.EventStartTyping, protocol.ConversationRef{ConversationID: conversationID})
}

func (s *Session) StopTyping(conversationID string) error {
	return s.emit(protocol.EventStopTyping, protocol.ConversationRef{ConversationID: conversationID})
}

func (s *Session) MarkMessageRead(messageID, conversationID string) error {
	return s.emit(protocol.EventMarkMessageRead, protocol.MessageRef{MessageID: messageID, ConversationID: conversationID})
}

func (s *Session) UpdateMessage(ctx context.Context, messageID, conversationID, content string) (protocol.Message, error) {
	var msg protocol.Message
	frame, err := s.request(ctx, protocol.EventUpdateMessage, protocol.UpdateMessagePayload{MessageID: messageID, ConversationID: conversationID, Content: content}, protocol.EventMessageUpdated)
	if err != nil {
		return msg, err
	}
	err = frame.Decode(&msg)
	return msg, err
}

func (s *Session) DeleteMessage(ctx context.Context, messageID, conversationID string) error {
	_, err := s.request(ctx, protocol.EventDeleteMessage, protocol.MessageRef{MessageID: messageID, ConversationID: conversationID}, protocol.EventMessageDeleted)
	return err
}

// GetMessageHistory returns up to limit messages older than before; zero values select the server defaults.
func (s *Session) GetMessageHistory(ctx context.Context, conversationID string, limit int, before time.Time) (protocol.MessageHistory, error) {
	req := protocol.HistoryRequest{ConversationID: conversationID, Limit: limit}
	if !before.IsZero() {
		req.Before = before.UTC().Format(time.RFC3339Nano)
	}

	var history protocol.MessageHistory
	frame, err := s.request(ctx, protocol.EventGetMessageHistory, req, protocol.EventMessageHistory)
	if err != nil {
		return history, err
	}
	err = frame.Decode(&history)
	return history, err
}

// GetOnlineUsers lists online users, scoped to a conversation when conversationID is set.
func (s *Session) GetOnlineUsers(ctx context.Context, conversationID string) ([]string, error) {
	frame, err := s.request(ctx, protocol.EventGetOnlineUsers, protocol.OnlineUsersRequest{ConversationID: conversationID}, protocol.EventOnlineUsers)
	if err != nil {
		return nil, err
	}
	var reply protocol.OnlineUsersReply
	if err := frame.Decode(&reply); err != nil {
		return nil, err
	}
	return reply.UserIDs, nil
}

func (s *Session) emit(event string, data any) error {
	frame, err := protocol.NewFrame(event, "", data)
	if err != nil {
		return err
	}
	return s.manager.Send(frame)
}

func (s *Session) request(ctx context.Context, event string, data any, replyEvent string) (protocol.Frame, error) {
	requestID := uuid.NewString()
	frame, err := protocol.NewFrame(event, requestID, data)
	if err != nil {
		return protocol.Frame{}, err
	}

	replies := make(chan protocol.Frame, 1)
	s.mu.Lock()
	s.pending[requestID] = replies
	s.mu.Unlock()
	defer s.dropPending(requestID)

	if err := s.manager.Send(frame); err != nil {
		return protocol.Frame{}, err
	}

	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replies:
		if !ok {
			return protocol.Frame{}, ErrSessionClosed
		}
		if reply.Event == protocol.EventError {
			var e protocol.ErrorReply
			_ = reply.Decode(&e)
			return protocol.Frame{}, &ServerError{Code: e.Code, Message: e.Message}
		}
		if reply.Event != replyEvent {
			return protocol.Frame{}, fmt.Errorf("chatclient: unexpected reply %q to %s", reply.Event, event)
		}
		return reply, nil
	case <-timer.C:
		return protocol.Frame{}, fmt.Errorf("chatclient: %s timed out after %s", event, s.opts.RequestTimeout)
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

// handleFrame runs on the socket reader. Replies go straight to their pending
// request; everything else is queued for the registry, so handlers may issue
// requests of their own.
func (s *Session) handleFrame(frame protocol.Frame) {
	if frame.RequestID != "" {
		s.mu.Lock()
		replies, ok := s.pending[frame.RequestID]
		if ok {
			delete(s.pending, frame.RequestID)
		}
		s.mu.Unlock()
		if ok {
			replies <- frame
			return
		}
	}
	s.events.push(frame)
}

func (s *Session) dropPending(requestID string) {
	s.mu.Lock()
	delete(s.pending, requestID)
	s.mu.Unlock()
}

func (s *Session) failPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan protocol.Frame)
	s.mu.Unlock()
	for _, replies := range pending {
		close(replies)
	}
}
