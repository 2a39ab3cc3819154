package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junqo-chat/pkg/protocol"
)

func TestRESTClientSendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/conversations/c1/messages":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			assert.Equal(t, "2024-05-01T12:00:00.700123Z", r.URL.Query().Get("before"))
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []protocol.Message{{ID: "m1"}}})
		case r.Method == http.MethodPost && r.URL.Path == "/conversations":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, []any{"B"}, body["participantIds"])
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(protocol.Conversation{ID: "c1", ParticipantIDs: []string{"A", "B"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/conversations/c1/messages/m1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL+"/", "tok")
	ctx := context.Background()

	msgs, err := client.ListMessages(ctx, "c1", 20, time.Date(2024, 5, 1, 12, 0, 0, 700123000, time.UTC))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	conv, err := client.CreateConversation(ctx, []string{"B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)

	require.NoError(t, client.DeleteMessage(ctx, "c1", "m1"))
}

func TestRESTClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not a conversation participant"}`))
	}))
	defer srv.Close()

	_, err := NewRESTClient(srv.URL, "tok").PostMessage(context.Background(), "c1", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "not a conversation participant", apiErr.Message)
}
