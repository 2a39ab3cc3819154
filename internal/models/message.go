package models

import "time"

// Message represents a conversation message.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversationId"`
	SenderID       string     `db:"sender_id" json:"senderId"`
	Content        string     `db:"content" json:"content"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// MessageHistory answers a history request for one conversation.
type MessageHistory struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// MessageEvent is published to the event broker after a message write.
type MessageEvent struct {
	EventType      string    `json:"event_type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ActorID        string    `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
