package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"junqo-chat/pkg/protocol"
)

// APIError is a non-2xx response of the REST surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatclient: http %d: %s", e.StatusCode, e.Message)
}

// RESTClient calls the conversation and message endpoints.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient builds a client for baseURL (e.g. http://localhost:8083) authenticated with token.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultRequestTimeout,
		},
	}
}

func (c *RESTClient) CreateConversation(ctx context.Context, participantIDs []string, title *string) (protocol.Conversation, error) {
	body := map[string]any{"participantIds": participantIDs}
	if title != nil {
		body["title"] = *title
	}
	var conv protocol.Conversation
	err := c.do(ctx, http.MethodPost, "/conversations", body, &conv)
	return conv, err
}

func (c *RESTClient) ListConversations(ctx context.Context) ([]protocol.ConversationSummary, error) {
	var resp struct {
		Conversations []protocol.ConversationSummary `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp)
	return resp.Conversations, err
}

func (c *RESTClient) GetConversation(ctx context.Context, conversationID string) (protocol.Conversation, error) {
	var conv protocol.Conversation
	err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &conv)
	return conv, err
}

func (c *RESTClient) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]protocol.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		query.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Messages []protocol.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Messages, err
}

func (c *RESTClient) PostMessage(ctx context.Context, conversationID, content string) (protocol.Message, error) {
	var msg protocol.Message
	err := c.do(ctx, http.MethodPost, messagesPath(conversationID, ""), map[string]string{"content": content}, &msg)
	return msg, err
}

func (c *RESTClient) UpdateMessage(ctx context.Context, conversationID, messageID, content string) (protocol.Message, error) {
	var msg protocol.Message
	err := c.do(ctx, http.MethodPatch, messagesPath(conversationID, messageID), map[string]string{"content": content}, &msg)
	return msg, err
}

func (c *RESTClient) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, http.MethodDelete, messagesPath(conversationID, messageID), nil, nil)
}

func (c *RESTClient) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, http.MethodPost, messagesPath(conversationID, messageID)+"/read", nil, nil)
}

func messagesPath(conversationID, messageID string) string {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if messageID != "" {
		path += "/" + url.PathEscape(messageID)
	}
	return path
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
