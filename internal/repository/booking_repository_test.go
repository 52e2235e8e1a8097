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

func bookingRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "submission_id", "teacher_id", "defense_date", "defense_time", "occupied", "created_at", "updated_at"}).
		AddRow("b1", "sub1", "t1", now, "12:00", true, now, now)
}

func TestBookingRepositoryListByTeacherFrom(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE teacher_id = $1 AND occupied AND defense_date >= $2")).
		WithArgs("t1", from).
		WillReturnRows(bookingRows(from))

	bookings, err := repo.ListByTeacherFrom(context.Background(), "t1", from)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "12:00", bookings[0].DefenseTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryExistsAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM bookings WHERE teacher_id = $1 AND defense_date = $2 AND defense_time = $3 AND occupied LIMIT 1")).
		WithArgs("t1", date, "12:00").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	taken, err := repo.ExistsAt(context.Background(), nil, "t1", date, "12:00", "")
	require.NoError(t, err)
	assert.True(t, taken)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM bookings WHERE teacher_id = $1 AND defense_date = $2 AND defense_time = $3 AND occupied LIMIT 1")).
		WithArgs("t1", date, "12:15").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	taken, err = repo.ExistsAt(context.Background(), nil, "t1", date, "12:15", "")
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryExistsAtExcludesSelf(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND id <> $4 LIMIT 1")).
		WithArgs("t1", date, "12:00", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	taken, err := repo.ExistsAt(context.Background(), nil, "t1", date, "12:00", "b1")
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	booking := &models.Booking{
		SubmissionID: "sub1",
		TeacherID:    "t1",
		DefenseDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		DefenseTime:  "12:00",
		Occupied:     true,
	}
	require.NoError(t, repo.Create(context.Background(), tx, booking))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryUpdateSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET defense_date = $2, defense_time = $3")).
		WithArgs("b1", date, "15:00", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSlot(context.Background(), nil, "b1", date, "15:00")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
