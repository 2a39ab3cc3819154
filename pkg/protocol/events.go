// Package protocol holds the websocket frame format and event names shared by
// the gateway and the Go client.
package protocol

import "encoding/json"

// Client -> server events.
const (
	EventJoinRoom          = "joinRoom"
	EventLeaveRoom         = "leaveRoom"
	EventSendMessage       = "sendMessage"
	EventStartTyping       = "startTyping"
	EventStopTyping        = "stopTyping"
	EventMarkMessageRead   = "markMessageRead"
	EventUpdateMessage     = "updateMessage"
	EventDeleteMessage     = "deleteMessage"
	EventGetMessageHistory = "getMessageHistory"
	EventGetOnlineUsers    = "getOnlineUsers"
)

// Server -> client broadcasts.
const (
	EventReceiveMessage  = "receiveMessage"
	EventUserStartTyping = "userStartTyping"
	EventUserStopTyping  = "userStopTyping"
	EventMessageRead     = "messageRead"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventUserStatus      = "userStatus"
)

// Server -> client replies. Replies echo the request id of the frame they answer.
const (
	EventMessageHistory = "messageHistory"
	EventOnlineUsers    = "onlineUsers"
	EventJoinedRoom     = "joinedRoom"
	EventMessageSent    = "messageSent"
	EventError          = "error"
)

// Presence states carried by userStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Error codes carried by error frames.
const (
	CodeBadRequest  = "bad_request"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal_error"
	CodeUnsupported = "unsupported_event"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame.
func NewFrame(event, requestID string, data any) (Frame, error) {
	frame := Frame{Event: event, RequestID: requestID}
	if data == nil {
		return frame, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	frame.Data = raw
	return frame, nil
}

// Encode marshals event and data into a ready-to-send payload.
func Encode(event, requestID string, data any) ([]byte, error) {
	frame, err := NewFrame(event, requestID, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}

// Decode unmarshals the frame data into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

// ConversationRef is the payload of joinRoom, leaveRoom, startTyping and stopTyping.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is the payload of sendMessage.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId,omitempty"`
	Content        string `json:"content"`
}

// MessageRef is the payload of markMessageRead and deleteMessage, and of the
// messageDeleted broadcast.
type MessageRef struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// UpdateMessagePayload is the payload of updateMessage.
type UpdateMessagePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// HistoryRequest is the payload of getMessageHistory. Before is an RFC3339 timestamp.
type HistoryRequest struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit,omitempty"`
	Before         string `json:"before,omitempty"`
}

// OnlineUsersRequest is the payload of getOnlineUsers.
type OnlineUsersRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
}

// TypingEvent is broadcast as userStartTyping / userStopTyping.
type TypingEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// ReadEvent is broadcast as messageRead.
type ReadEvent struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// StatusEvent is broadcast as userStatus.
type StatusEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// OnlineUsersReply answers getOnlineUsers.
type OnlineUsersReply struct {
	ConversationID string   `json:"conversationId,omitempty"`
	UserIDs        []string `json:"userIds"`
}

// ErrorReply is the payload of error frames.
type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
