package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
)

func TestSignupRepositoryCreateAssignsSeq(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO signup_entries")).
		WithArgs(sqlmock.AnyArg(), "w1", "stu1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(3))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	entry := &models.SignupEntry{WindowID: "w1", StudentID: "stu1"}
	require.NoError(t, repo.Create(context.Background(), tx, entry))
	require.NoError(t, tx.Commit())

	assert.Equal(t, 3, entry.Seq)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryCountByWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM signup_entries WHERE window_id = $1")).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountByWindow(context.Background(), nil, "w1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM signup_entries WHERE window_id = $1 AND student_id = $2")).
		WithArgs("w1", "stu1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.Delete(context.Background(), nil, "w1", "stu1")
	require.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM signup_entries WHERE window_id = $1 AND student_id = $2")).
		WithArgs("w1", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err = repo.Delete(context.Background(), nil, "w1", "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryListByWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "window_id", "student_id", "seq", "created_at"}).
		AddRow("e1", "w1", "stu1", 1, now).
		AddRow("e2", "w1", "stu2", 2, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM signup_entries WHERE window_id = $1 ORDER BY created_at ASC, seq ASC")).
		WithArgs("w1").
		WillReturnRows(rows)

	entries, err := repo.ListByWindow(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "stu1", entries[0].StudentID)
	assert.Equal(t, 2, entries[1].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignupRepositoryCountEarlier(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSignupRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE window_id = $1 AND (created_at < $2 OR (created_at = $2 AND seq < $3))")).
		WithArgs("w1", now, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	entry := &models.SignupEntry{WindowID: "w1", Seq: 3, CreatedAt: now}
	count, err := repo.CountEarlier(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
