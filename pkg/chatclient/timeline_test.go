package chatclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junqo-chat/pkg/protocol"
)

func TestTimelinePendingLifecycle(t *testing.T) {
	tl := NewTimeline("c1", []protocol.Message{{ID: "m0", ConversationID: "c1"}})

	tempID := tl.AppendPending("A", "hi")
	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Pending)
	assert.Equal(t, "hi", entries[1].Content)

	assert.True(t, tl.Confirm(tempID, protocol.Message{ID: "m1", ConversationID: "c1", Content: "hi"}))
	entries = tl.Entries()
	assert.Equal(t, "m1", entries[1].ID)
	assert.False(t, entries[1].Pending)

	assert.False(t, tl.Revert(tempID))
}

func TestTimelineConfirmAfterBroadcast(t *testing.T) {
	tl := NewTimeline("c1", nil)
	tempID := tl.AppendPending("A", "hi")
	tl.Apply(protocol.Message{ID: "m1", ConversationID: "c1", Content: "hi"})

	assert.True(t, tl.Confirm(tempID, protocol.Message{ID: "m1", ConversationID: "c1", Content: "hi"}))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

func TestTimelineApplyAndRemove(t *testing.T) {
	tl := NewTimeline("c1", nil)
	tl.Apply(protocol.Message{ID: "m1", ConversationID: "c1", Content: "a"})
	tl.Apply(protocol.Message{ID: "m1", ConversationID: "c1", Content: "b"})
	tl.Apply(protocol.Message{ID: "m2", ConversationID: "c2", Content: "other"})

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Content)

	assert.True(t, tl.Remove("m1"))
	assert.Empty(t, tl.Entries())
}
