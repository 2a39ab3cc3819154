package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"junqo-chat/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `id, participant_ids, title, last_message_id, created_at, updated_at`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGet(ctx context.Context, participantIDs []string, title *string) (models.Conversation, bool, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGet stores a conversation for the given participant set. Untitled
// two-party conversations are unique per pair: when one exists it is returned
// and the boolean result is false.
func (r *ConversationRepo) CreateOrGet(ctx context.Context, participantIDs []string, title *string) (models.Conversation, bool, error) {
	key := strings.Join(participantIDs, ",")
	pair := title == nil && len(participantIDs) == 2

	query := `INSERT INTO conversations (id, participant_ids, participant_key, title) VALUES ($1, $2, $3, $4)
        RETURNING ` + conversationColumns
	if pair {
		query = `INSERT INTO conversations (id, participant_ids, participant_key, title) VALUES ($1, $2, $3, $4)
        ON CONFLICT (participant_key) WHERE title IS NULL AND cardinality(participant_ids) = 2 DO NOTHING
        RETURNING ` + conversationColumns
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, query, uuid.NewString(), pq.StringArray(participantIDs), key, title)
	if err == nil {
		return conv, true, nil
	}
	if !pair || !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	err = r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations
        WHERE participant_key=$1 AND title IS NULL AND cardinality(participant_ids) = 2`, key)
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, false, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

type conversationRow struct {
	models.Conversation
	LastSenderID  sql.NullString `db:"last_sender_id"`
	LastContent   sql.NullString `db:"last_content"`
	LastCreatedAt sql.NullTime   `db:"last_created_at"`
}

// ListForUser returns the user's conversations, most recent activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.participant_ids, c.title, c.last_message_id, c.created_at, c.updated_at,
            m.sender_id AS last_sender_id, m.content AS last_content, m.created_at AS last_created_at
        FROM conversations c
        LEFT JOIN messages m ON m.id = c.last_message_id
        WHERE $1 = ANY(c.participant_ids)
        ORDER BY c.updated_at DESC`
	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	result := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ConversationSummary{Conversation: row.Conversation}
		if row.LastMessageID != nil && row.LastContent.Valid {
			summary.LastMessage = &models.MessagePreview{
				ID:        *row.LastMessageID,
				SenderID:  row.LastSenderID.String,
				Content:   row.LastContent.String,
				CreatedAt: timeOrZero(row.LastCreatedAt),
			}
		}
		result = append(result, summary)
	}
	return result, nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND $2 = ANY(participant_ids))`, conversationID, userID)
	return exists, err
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}
