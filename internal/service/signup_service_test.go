package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/locker"
)

type mockSignupRepo struct {
	entries []models.SignupEntry
	nextSeq int
}

func (m *mockSignupRepo) CountByWindow(ctx context.Context, exec sqlx.ExtContext, windowID string) (int, error) {
	count := 0
	for _, e := range m.entries {
		if e.WindowID == windowID {
			count++
		}
	}
	return count, nil
}

func (m *mockSignupRepo) FindByWindowAndStudent(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (*models.SignupEntry, error) {
	for _, e := range m.entries {
		if e.WindowID == windowID && e.StudentID == studentID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSignupRepo) ListByWindow(ctx context.Context, windowID string) ([]models.SignupEntry, error) {
	var out []models.SignupEntry
	for _, e := range m.entries {
		if e.WindowID == windowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSignupRepo) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.SignupEntry) error {
	m.nextSeq++
	entry.Seq = m.nextSeq
	if entry.ID == "" {
		entry.ID = "new-entry"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockSignupRepo) Delete(ctx context.Context, exec sqlx.ExtContext, windowID, studentID string) (bool, error) {
	for i, e := range m.entries {
		if e.WindowID == windowID && e.StudentID == studentID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSignupRepo) CountEarlier(ctx context.Context, entry *models.SignupEntry) (int, error) {
	count := 0
	for _, e := range m.entries {
		if e.WindowID != entry.WindowID {
			continue
		}
		if e.CreatedAt.Before(entry.CreatedAt) || (e.CreatedAt.Equal(entry.CreatedAt) && e.Seq < entry.Seq) {
			count++
		}
	}
	return count, nil
}

type signupFixture struct {
	service   *SignupService
	signups   *mockSignupRepo
	windows   *mockWindowRepo
	publisher *mockPublisher
	dbmock    sqlmock.Sqlmock
	cleanup   func()
}

func newSignupFixture(t *testing.T) *signupFixture {
	db, dbmock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")

	f := &signupFixture{
		signups:   &mockSignupRepo{},
		windows:   &mockWindowRepo{},
		publisher: &mockPublisher{},
		dbmock:    dbmock,
		cleanup:   func() { db.Close() },
	}
	f.service = NewSignupService(sqlxdb, f.signups, f.windows, locker.NewMemoryLocker(), f.publisher,
		config.DefenseConfig{SignupQuantumMinutes: 15}, nil)
	return f
}

func student(id string) *models.User {
	return &models.User{ID: id, Role: models.RoleStudent}
}

func TestSignupFillsWindowToCapacity(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	// 45 minutes at the 15-minute quantum gives three slots.
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "10:45"},
	}

	for i, id := range []string{"s1", "s2", "s3"} {
		f.dbmock.ExpectBegin()
		f.dbmock.ExpectCommit()
		entry, err := f.service.Signup(context.Background(), "w1", student(id))
		require.NoError(t, err)
		assert.Equal(t, i+1, entry.Seq)
	}

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectRollback()
	_, err := f.service.Signup(context.Background(), "w1", student("s4"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowFull))
}

func TestSignupDuplicate(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "11:00"},
	}

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectCommit()
	_, err := f.service.Signup(context.Background(), "w1", student("s1"))
	require.NoError(t, err)

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectRollback()
	_, err = f.service.Signup(context.Background(), "w1", student("s1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadySignedUp))
}

func TestSignupRoleRestricted(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "11:00"},
	}

	_, err := f.service.Signup(context.Background(), "w1", &models.User{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.service.Signup(context.Background(), "w1", &models.User{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestSignupCancelFreesSlot(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	// One slot only: 15 minutes at the 15-minute quantum.
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "10:15"},
	}

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectCommit()
	_, err := f.service.Signup(context.Background(), "w1", student("s1"))
	require.NoError(t, err)

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectRollback()
	_, err = f.service.Signup(context.Background(), "w1", student("s2"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrWindowFull))

	require.NoError(t, f.service.Cancel(context.Background(), "w1", student("s1")))

	f.dbmock.ExpectBegin()
	f.dbmock.ExpectCommit()
	entry, err := f.service.Signup(context.Background(), "w1", student("s2"))
	require.NoError(t, err)
	assert.Equal(t, "s2", entry.StudentID)
}

func TestSignupCancelNotSignedUp(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "11:00"},
	}

	err := f.service.Cancel(context.Background(), "w1", student("ghost"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotSignedUp))
}

func TestSignupPosition(t *testing.T) {
	f := newSignupFixture(t)
	defer f.cleanup()
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "10:00", EndTime: "11:00"},
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.signups.entries = []models.SignupEntry{
		{ID: "e1", WindowID: "w1", StudentID: "s1", Seq: 1, CreatedAt: base},
		{ID: "e2", WindowID: "w1", StudentID: "s2", Seq: 2, CreatedAt: base},
		{ID: "e3", WindowID: "w1", StudentID: "s3", Seq: 3, CreatedAt: base.Add(time.Minute)},
	}

	pos, err := f.service.Position(context.Background(), "w1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Position)
	assert.Equal(t, 3, pos.Total)
	assert.Equal(t, 4, pos.Capacity)

	_, err = f.service.Position(context.Background(), "w1", "ghost")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotSignedUp))
}
