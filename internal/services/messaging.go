package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"junqo-chat/internal/broker"
	"junqo-chat/internal/models"
	"junqo-chat/internal/observability"
	"junqo-chat/internal/repositories"
	"junqo-chat/pkg/protocol"
)

var (
	ErrNotParticipant      = errors.New("not a conversation participant")
	ErrNotSender           = errors.New("only the sender may modify a message")
	ErrInvalidContent      = errors.New("message content must be between 1 and the maximum length")
	ErrInvalidParticipants = errors.New("a conversation needs at least one other participant")
	ErrMessageMismatch     = errors.New("message does not belong to conversation")
)

// Broadcaster fans an event out to the sockets joined to a conversation room.
// excludeConnID, when non-empty, skips the originating socket.
type Broadcaster interface {
	BroadcastRoom(conversationID, event string, data any, excludeConnID string) int
}

// Limits bounds message size and history pages.
type Limits struct {
	HistoryDefault   int
	HistoryMax       int
	MaxContentLength int
}

// MessagingService persists conversation and message writes and only then
// broadcasts them, so a failed write never reaches other clients.
type MessagingService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           Broadcaster
	events        broker.Publisher
	limits        Limits
}

// NewMessagingService wires the service. events may be nil.
func NewMessagingService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, hub Broadcaster, events broker.Publisher, limits Limits) *MessagingService {
	if limits.HistoryDefault <= 0 {
		limits.HistoryDefault = 50
	}
	if limits.HistoryMax <= 0 {
		limits.HistoryMax = 100
	}
	if limits.MaxContentLength <= 0 {
		limits.MaxContentLength = 4000
	}
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		events:        events,
		limits:        limits,
	}
}

// CreateConversation returns the conversation between the creator and the
// given participants, creating it when needed. The boolean reports creation.
func (s *MessagingService) CreateConversation(ctx context.Context, creatorID string, participantIDs []string, title *string) (models.Conversation, bool, error) {
	ids := normalizeParticipants(creatorID, participantIDs)
	if len(ids) < 2 {
		return models.Conversation{}, false, ErrInvalidParticipants
	}
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			title = nil
		} else {
			title = &trimmed
		}
	}

	conv, created, err := s.conversations.CreateOrGet(ctx, ids, title)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}
	if created {
		s.publish(ctx, "conversation.created", conv.ID, "", creatorID)
	}
	return conv, created, nil
}

// ListConversations returns the user's conversations with previews.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	return s.conversations.ListForUser(ctx, userID)
}

// GetConversation returns a conversation visible to userID.
func (s *MessagingService) GetConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

// EnsureParticipant fails with ErrNotParticipant unless userID belongs to the conversation.
func (s *MessagingService) EnsureParticipant(ctx context.Context, userID, conversationID string) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// SendMessage stores a message, then relays it to the room as receiveMessage.
func (s *MessagingService) SendMessage(ctx context.Context, userID, conversationID, content, originConnID string) (models.Message, error) {
	content, err := s.validContent(content)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.EnsureParticipant(ctx, userID, conversationID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.Create(ctx, conversationID, userID, content)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	s.broadcast(conversationID, protocol.EventReceiveMessage, msg, originConnID)
	s.publish(ctx, "message.created", conversationID, msg.ID, userID)
	return msg, nil
}

// UpdateMessage edits a message owned by userID and relays messageUpdated.
func (s *MessagingService) UpdateMessage(ctx context.Context, userID, conversationID, messageID, content, originConnID string) (models.Message, error) {
	content, err := s.validContent(content)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := s.ownedMessage(ctx, userID, conversationID, messageID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.Update(ctx, messageID, content)
	if err != nil {
		return models.Message{}, fmt.Errorf("update message: %w", err)
	}

	s.broadcast(conversationID, protocol.EventMessageUpdated, msg, originConnID)
	s.publish(ctx, "message.updated", conversationID, msg.ID, userID)
	return msg, nil
}

// DeleteMessage tombstones a message owned by userID and relays messageDeleted.
func (s *MessagingService) DeleteMessage(ctx context.Context, userID, conversationID, messageID, originConnID string) error {
	if _, err := s.ownedMessage(ctx, userID, conversationID, messageID); err != nil {
		return err
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.broadcast(conversationID, protocol.EventMessageDeleted, protocol.MessageRef{MessageID: messageID, ConversationID: conversationID}, originConnID)
	s.publish(ctx, "message.deleted", conversationID, messageID, userID)
	return nil
}

// MarkRead records a read receipt and relays messageRead.
func (s *MessagingService) MarkRead(ctx context.Context, userID, conversationID, messageID, originConnID string) error {
	if err := s.EnsureParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return ErrMessageMismatch
	}

	if err := s.messages.MarkRead(ctx, messageID, userID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	s.broadcast(conversationID, protocol.EventMessageRead, protocol.ReadEvent{MessageID: messageID, UserID: userID}, originConnID)
	s.publish(ctx, "message.read", conversationID, messageID, userID)
	return nil
}

// History returns a page of messages older than before, oldest first. A zero
// before means now; limit is clamped to the configured bounds.
func (s *MessagingService) History(ctx context.Context, userID, conversationID string, limit int, before time.Time) (models.MessageHistory, error) {
	if err := s.EnsureParticipant(ctx, userID, conversationID); err != nil {
		return models.MessageHistory{}, err
	}
	msgs, err := s.messages.List(ctx, conversationID, s.clampLimit(limit), before)
	if err != nil {
		return models.MessageHistory{}, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return models.MessageHistory{ConversationID: conversationID, Messages: msgs}, nil
}

func (s *MessagingService) ownedMessage(ctx context.Context, userID, conversationID, messageID string) (models.Message, error) {
	if err := s.EnsureParticipant(ctx, userID, conversationID); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ConversationID != conversationID {
		return models.Message{}, ErrMessageMismatch
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrNotSender
	}
	return msg, nil
}

func (s *MessagingService) validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > s.limits.MaxContentLength {
		return "", ErrInvalidContent
	}
	return content, nil
}

func (s *MessagingService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.limits.HistoryDefault
	}
	if limit > s.limits.HistoryMax {
		return s.limits.HistoryMax
	}
	return limit
}

func (s *MessagingService) broadcast(conversationID, event string, data any, originConnID string) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastRoom(conversationID, event, data, originConnID)
}

func (s *MessagingService) publish(ctx context.Context, eventType, conversationID, messageID, actorID string) {
	observability.IncDomainEvent(eventType)
	if s.events == nil {
		return
	}
	event := models.MessageEvent{
		EventType:      eventType,
		ConversationID: conversationID,
		MessageID:      messageID,
		ActorID:        actorID,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, eventType, event); err != nil {
		observability.IncBrokerPublishError()
		log.Printf("event publish failed: event_type=%s conversation_id=%s err=%v", eventType, conversationID, err)
	}
}

func normalizeParticipants(creatorID string, participantIDs []string) []string {
	set := map[string]struct{}{}
	if creatorID = strings.TrimSpace(creatorID); creatorID != "" {
		set[creatorID] = struct{}{}
	}
	for _, id := range participantIDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
