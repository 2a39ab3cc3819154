package chatclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"junqo-chat/pkg/protocol"
)

const pendingPrefix = "pending-"

// Entry is a timeline message. Pending entries have not been stored yet.
type Entry struct {
	protocol.Message
	Pending bool
}

// Timeline is the local message list of one conversation, including
// optimistic entries.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	entries        []Entry
}

func NewTimeline(conversationID string, history []protocol.Message) *Timeline {
	tl := &Timeline{conversationID: conversationID}
	for _, msg := range history {
		tl.entries = append(tl.entries, Entry{Message: msg})
	}
	return tl
}

func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// AppendPending adds a speculative message and returns its temporary id.
func (t *Timeline) AppendPending(senderID, content string) string {
	now := time.Now().UTC()
	tempID := pendingPrefix + uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Message: protocol.Message{
			ID:             tempID,
			ConversationID: t.conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Pending: true,
	})
	return tempID
}

// Confirm swaps a pending entry for the stored message. If the stored message
// already arrived through a broadcast the pending entry is dropped.
func (t *Timeline) Confirm(tempID string, msg protocol.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(tempID)
	if i < 0 {
		return false
	}
	if t.indexLocked(msg.ID) >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		return true
	}
	t.entries[i] = Entry{Message: msg}
	return true
}

// Revert removes a pending entry.
func (t *Timeline) Revert(tempID string) bool {
	return t.Remove(tempID)
}

// Apply inserts a received message or replaces the stored copy with the same id.
func (t *Timeline) Apply(msg protocol.Message) {
	if msg.ConversationID != "" && msg.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(msg.ID); i >= 0 {
		t.entries[i] = Entry{Message: msg}
		return
	}
	t.entries = append(t.entries, Entry{Message: msg})
}

// Remove drops the entry with the given id.
func (t *Timeline) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return true
}

// Entries returns a copy of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) indexLocked(id string) int {
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}
