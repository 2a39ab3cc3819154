package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"junqo-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_id, sender_id, content, created_at, updated_at, deleted_at`

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID string, senderID string, content string) (models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	List(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error)
	Update(ctx context.Context, messageID string, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, messageID string, userID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message and points the conversation at it in one transaction.
// The conversation row is locked before the message is stamped, so within a
// conversation creation order matches commit order and last_message_id always
// names the newest message.
func (r *MessageRepo) Create(ctx context.Context, conversationID string, senderID string, content string) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var locked string
	err = tx.GetContext(ctx, &locked, `SELECT id FROM conversations WHERE id=$1 FOR UPDATE`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if err = tx.GetContext(ctx, &msg, `WITH stamp AS (SELECT clock_timestamp() AS ts)
        INSERT INTO messages (id, conversation_id, sender_id, content, created_at, updated_at)
        SELECT $1, $2, $3, $4, ts, ts FROM stamp
        RETURNING `+messageColumns, uuid.NewString(), conversationID, senderID, content); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2, updated_at=GREATEST(updated_at, $3) WHERE id=$1`,
		conversationID, msg.ID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single non-deleted message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1 AND deleted_at IS NULL`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// List returns up to limit messages created strictly before the given time,
// oldest first. A zero before returns the newest page.
func (r *MessageRepo) List(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error) {
	args := []any{conversationID, limit}
	bound := ""
	if !before.IsZero() {
		args = append(args, before)
		bound = " AND created_at < $3"
	}
	query := `SELECT * FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE conversation_id=$1 AND deleted_at IS NULL` + bound + `
            ORDER BY created_at DESC, id DESC
            LIMIT $2
        ) page ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// Update replaces a message's content.
func (r *MessageRepo) Update(ctx context.Context, messageID string, content string) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &msg, `UPDATE messages SET content=$2, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at=$2 WHERE id=$1`, msg.ConversationID, msg.UpdatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SoftDelete tombstones a message and repoints the conversation at the newest
// remaining message.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conversationID string
	err = tx.GetContext(ctx, &conversationID, `UPDATE messages SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL RETURNING conversation_id`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at=NOW(), last_message_id=(
            SELECT id FROM messages WHERE conversation_id=$1 AND deleted_at IS NULL
            ORDER BY created_at DESC, id DESC LIMIT 1
        ) WHERE id=$1`, conversationID); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkRead records a read receipt; repeated calls are no-ops.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	return err
}
