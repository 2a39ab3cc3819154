package protocol

import "time"

// Message is the wire form of a stored message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MessageHistory answers getMessageHistory.
type MessageHistory struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// Conversation is the wire form of a conversation.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participantIds"`
	Title          *string   `json:"title,omitempty"`
	LastMessageID  *string   `json:"lastMessageId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ConversationSummary is a list entry with the newest message preview.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
}
