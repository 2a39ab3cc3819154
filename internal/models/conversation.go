package models

import (
	"time"

	"github.com/lib/pq"
)

// Conversation is a thread between a fixed set of participants.
type Conversation struct {
	ID             string         `db:"id" json:"id"`
	ParticipantIDs pq.StringArray `db:"participant_ids" json:"participantIds"`
	Title          *string        `db:"title" json:"title,omitempty"`
	LastMessageID  *string        `db:"last_message_id" json:"lastMessageId,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the list view of a conversation with its last message preview.
type ConversationSummary struct {
	Conversation
	LastMessage *MessagePreview `json:"lastMessage,omitempty"`
}

// MessagePreview is the denormalized last message shown in conversation lists.
type MessagePreview struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
