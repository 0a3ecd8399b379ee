package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aihub/medical-rag/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDBStore(t *testing.T, opts SessionOptions) (*DBSessionStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := database.WrapConn(conn)
	require.NoError(t, err)
	return NewDBSessionStore(db, opts), mock
}

func TestDBSessionStore_AppendExchange(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{MaxTurns: 50})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "conversation_turns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec(`DELETE FROM conversation_turns WHERE user_id = \$1 AND id NOT IN`).
		WithArgs("u1", "u1", 50).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.AppendExchange(context.Background(), "u1", "發燒怎麼辦", "多喝水"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSessionStore_AppendRollsBack(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{MaxTurns: 50})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "conversation_turns"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.AppendExchange(context.Background(), "u1", "q", "a")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSessionStore_History(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{TTL: time.Hour})
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "role", "content", "created_at"}).
		AddRow(4, "u1", "assistant", "a2", now).
		AddRow(3, "u1", "user", "q2", now)
	mock.ExpectQuery(`SELECT \* FROM "conversation_turns" WHERE user_id = \$1 ORDER BY id DESC`).
		WillReturnRows(rows)

	turns, err := store.History(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "q2", turns[0].Content)
	assert.WithinDuration(t, now, turns[0].CreatedAt, time.Second)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSessionStore_HistoryExpired(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{TTL: time.Hour})
	old := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery(`SELECT \* FROM "conversation_turns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role", "content", "created_at"}).
			AddRow(2, "u1", "assistant", "a", old))

	turns, err := store.History(context.Background(), "u1", 6)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDBSessionStore_HistoryDropsTurnsBeforeExpiry(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{TTL: time.Hour})
	now := time.Now()
	stale := now.Add(-48 * time.Hour)

	mock.ExpectQuery(`SELECT \* FROM "conversation_turns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role", "content", "created_at"}).
			AddRow(4, "u1", "assistant", "new-a", now).
			AddRow(3, "u1", "user", "new-q", now).
			AddRow(2, "u1", "assistant", "stale-a", stale).
			AddRow(1, "u1", "user", "stale-q", stale))

	turns, err := store.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "new-q", turns[0].Content)
	assert.Equal(t, "new-a", turns[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSessionStore_AppendClearsExpiredSession(t *testing.T) {
	store, mock := newMockDBStore(t, SessionOptions{MaxTurns: 50, TTL: time.Hour})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM conversation_turns WHERE user_id = \$1 AND NOT EXISTS`).
		WithArgs("u1", "u1", now.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(`INSERT INTO "conversation_turns"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5).AddRow(6))
	mock.ExpectExec(`DELETE FROM conversation_turns WHERE user_id = \$1 AND id NOT IN`).
		WithArgs("u1", "u1", 50).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.AppendExchange(context.Background(), "u1", "q", "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
