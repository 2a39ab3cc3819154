package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

var (
	convCols = []string{"id", "participant_ids", "title", "last_message_id", "created_at", "updated_at"}
	msgCols  = []string{"id", "conversation_id", "sender_id", "content", "created_at", "updated_at", "deleted_at"}
)

func TestCreateOrGetReturnsExistingPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "A,B", nil).
		WillReturnRows(sqlmock.NewRows(convCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations")).
		WithArgs("A,B").
		WillReturnRows(sqlmock.NewRows(convCols).AddRow("c1", "{A,B}", nil, nil, now, now))

	conv, created, err := repo.CreateOrGet(context.Background(), []string{"A", "B"}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, []string{"A", "B"}, []string(conv.ParticipantIDs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetGroupAlwaysInserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "A,B,C", nil).
		WillReturnRows(sqlmock.NewRows(convCols).AddRow("c2", "{A,B,C}", nil, nil, now, now))

	conv, created, err := repo.CreateOrGet(context.Background(), []string{"A", "B", "C"}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, conv.ParticipantIDs, 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversationNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations WHERE id=$1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewConversationRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestListForUserBuildsPreview(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	cols := append(append([]string{}, convCols...), "last_sender_id", "last_content", "last_created_at")
	mock.ExpectQuery(regexp.QuoteMeta("ANY(c.participant_ids)")).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "{A,B}", nil, "m1", now, now, "B", "hey", now).
			AddRow("c2", "{A,C}", nil, nil, now, now, nil, nil, nil))

	list, err := NewConversationRepo(db).ListForUser(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "hey", list[0].LastMessage.Content)
	assert.Nil(t, list[1].LastMessage)
}

func TestCreateMessageMissingConversation(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM conversations WHERE id=$1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := NewMessageRepo(db).Create(context.Background(), "c1", "A", "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageLocksConversationBeforeStamping(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM conversations WHERE id=$1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT clock_timestamp() AS ts")).
		WithArgs(sqlmock.AnyArg(), "c1", "A", "hi").
		WillReturnRows(sqlmock.NewRows(msgCols).AddRow("m1", "c1", "A", "hi", now, now, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET last_message_id=$2, updated_at=GREATEST(updated_at, $3) WHERE id=$1")).
		WithArgs("c1", "m1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := NewMessageRepo(db).Create(context.Background(), "c1", "A", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteRecomputesLastMessage(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE messages SET deleted_at=NOW()")).
		WithArgs("m2").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}).AddRow("c1"))
	mock.ExpectExec(regexp.QuoteMeta("last_message_id=(")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMessageRepo(db).SoftDelete(context.Background(), "m2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMissingMessage(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE messages SET deleted_at=NOW()")).
		WithArgs("m9").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}))
	mock.ExpectRollback()

	err := NewMessageRepo(db).SoftDelete(context.Background(), "m9")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesEmptyPage(t *testing.T) {
	db, mock := newMockDB(t)
	before := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("AND created_at < $3")).
		WithArgs("c1", 50, before).
		WillReturnRows(sqlmock.NewRows(msgCols))

	msgs, err := NewMessageRepo(db).List(context.Background(), "c1", 50, before)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesWithoutCursorHasNoTimeBound(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	mock.ExpectQuery(`WHERE conversation_id=\$1 AND deleted_at IS NULL\s+ORDER BY created_at DESC`).
		WithArgs("c1", 50).
		WillReturnRows(sqlmock.NewRows(msgCols).AddRow("m1", "c1", "A", "hi", now, now, nil))

	msgs, err := NewMessageRepo(db).List(context.Background(), "c1", 50, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
