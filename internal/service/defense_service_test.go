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

type mockBookingRepo struct {
	bookings []models.Booking
	created  *models.Booking
	moved    map[string]string
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	for _, b := range m.bookings {
		if b.ID == id {
			copy := b
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) FindBySubmission(ctx context.Context, submissionID string) (*models.Booking, error) {
	for _, b := range m.bookings {
		if b.SubmissionID == submissionID {
			copy := b
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TeacherID == teacherID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range m.bookings {
		if b.TeacherID == teacherID && b.DefenseDate.Equal(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) ListDetailByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.BookingDetail, error) {
	return nil, nil
}

func (m *mockBookingRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepo) ExistsAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, clock string, excludeID string) (bool, error) {
	for _, b := range m.bookings {
		if b.ID == excludeID || !b.Occupied {
			continue
		}
		if b.TeacherID == teacherID && b.DefenseDate.Equal(date) && b.DefenseTime == clock {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBookingRepo) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = "new-booking"
	}
	m.bookings = append(m.bookings, *booking)
	m.created = booking
	return nil
}

func (m *mockBookingRepo) UpdateSlot(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time, clock string) error {
	if m.moved == nil {
		m.moved = make(map[string]string)
	}
	m.moved[id] = date.Format("2006-01-02") + " " + clock
	for i, b := range m.bookings {
		if b.ID == id {
			m.bookings[i].DefenseDate = date
			m.bookings[i].DefenseTime = clock
		}
	}
	return nil
}

type mockWindowRepo struct {
	windows []models.TimeWindow
	created *models.TimeWindow
	deleted []string
}

func (m *mockWindowRepo) FindByID(ctx context.Context, id string) (*models.TimeWindow, error) {
	for _, w := range m.windows {
		if w.ID == id {
			copy := w
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockWindowRepo) ListByTeacherFrom(ctx context.Context, teacherID string, from time.Time) ([]models.TimeWindow, error) {
	var out []models.TimeWindow
	for _, w := range m.windows {
		if w.TeacherID == teacherID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWindowRepo) ListByTeacherAndDate(ctx context.Context, teacherID string, date time.Time) ([]models.TimeWindow, error) {
	var out []models.TimeWindow
	for _, w := range m.windows {
		if w.TeacherID == teacherID && w.Date.Equal(date) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWindowRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimeWindow, error) {
	return m.ListByTeacherFrom(ctx, teacherID, time.Time{})
}

func (m *mockWindowRepo) Create(ctx context.Context, window *models.TimeWindow) error {
	if window.ID == "" {
		window.ID = "new-window"
	}
	m.windows = append(m.windows, *window)
	m.created = window
	return nil
}

func (m *mockWindowRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSubmissionReader struct {
	submissions map[string]models.Submission
}

func (m *mockSubmissionReader) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockTaskReader struct {
	tasks map[string]models.Task
}

func (m *mockTaskReader) FindByID(ctx context.Context, id string) (*models.Task, error) {
	if t, ok := m.tasks[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockPublisher struct {
	events []Event
}

func (m *mockPublisher) Publish(event Event) {
	m.events = append(m.events, event)
}

type defenseFixture struct {
	service     *DefenseService
	bookings    *mockBookingRepo
	windows     *mockWindowRepo
	submissions *mockSubmissionReader
	tasks       *mockTaskReader
	courses     *mockCourseReader
	publisher   *mockPublisher
	dbmock      sqlmock.Sqlmock
	cleanup     func()
}

func newDefenseFixture(t *testing.T) *defenseFixture {
	db, dbmock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")

	f := &defenseFixture{
		bookings:    &mockBookingRepo{},
		windows:     &mockWindowRepo{},
		submissions: &mockSubmissionReader{submissions: map[string]models.Submission{}},
		tasks:       &mockTaskReader{tasks: map[string]models.Task{}},
		courses:     &mockCourseReader{courses: map[string]models.Course{}},
		publisher:   &mockPublisher{},
		dbmock:      dbmock,
		cleanup:     func() { db.Close() },
	}
	f.service = NewDefenseService(sqlxdb, f.bookings, f.windows, f.submissions, f.tasks, f.courses,
		locker.NewMemoryLocker(), f.publisher, config.DefenseConfig{AverageDefenseMinutes: 10}, nil)
	return f
}

func (f *defenseFixture) expectTx() {
	f.dbmock.ExpectBegin()
	f.dbmock.ExpectCommit()
}

func TestDefenseCommit(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.expectTx()

	booking, err := f.service.Commit(context.Background(), "sub1", "t1", day(2), "12:00")
	require.NoError(t, err)
	assert.True(t, booking.Occupied)
	assert.Equal(t, "12:00", booking.DefenseTime)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventBookingCommitted, f.publisher.events[0].Type)
}

func TestDefenseCommitDuplicateBooking(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "sub1", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}

	_, err := f.service.Commit(context.Background(), "sub1", "t1", day(3), "10:00")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateBooking))
}

func TestDefenseCommitSlotConflict(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "sub1", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}
	f.dbmock.ExpectBegin()
	f.dbmock.ExpectRollback()

	_, err := f.service.Commit(context.Background(), "sub2", "t1", day(2), "12:00")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotConflict))
	assert.Nil(t, f.bookings.created)
}

func TestDefenseAllocate(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", CourseID: "c1", ExpectedDefenseMinutes: 30}
	f.courses.courses["c1"] = models.Course{ID: "c1", TeacherID: "t1"}
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
		{ID: "w2", TeacherID: "t1", Date: day(3), StartTime: "10:00", EndTime: "11:00"},
	}
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "other", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}
	f.expectTx()

	booking, err := f.service.Allocate(context.Background(), &models.Submission{ID: "sub1", TaskID: "task1"})
	require.NoError(t, err)
	assert.True(t, booking.DefenseDate.Equal(day(3)))
	assert.Equal(t, "10:00", booking.DefenseTime)
}

func TestDefenseAllocateNoSlot(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", CourseID: "c1", ExpectedDefenseMinutes: 30}
	f.courses.courses["c1"] = models.Course{ID: "c1", TeacherID: "t1"}
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
	}
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "other", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}

	_, err := f.service.Allocate(context.Background(), &models.Submission{ID: "sub1", TaskID: "task1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoSlotAvailable))
	assert.Empty(t, f.publisher.events)
}

func TestDefenseReschedule(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "sub1", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}
	f.submissions.submissions["sub1"] = models.Submission{ID: "sub1", TaskID: "task1", StudentID: "stu1"}
	f.tasks.tasks["task1"] = models.Task{ID: "task1", CourseID: "c1", ExpectedDefenseMinutes: 30}
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "13:00"},
	}
	f.expectTx()

	actor := &models.User{ID: "stu1", Role: models.RoleStudent}
	booking, err := f.service.Reschedule(context.Background(), "b1", actor)
	require.NoError(t, err)
	// The vacated 12:00 slot is the earliest free one again.
	assert.Equal(t, "12:00", booking.DefenseTime)
	assert.Equal(t, "b1", booking.ID)
}

func TestDefenseRescheduleForbidden(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "sub1", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}
	f.submissions.submissions["sub1"] = models.Submission{ID: "sub1", StudentID: "stu1"}

	_, err := f.service.Reschedule(context.Background(), "b1", &models.User{ID: "intruder", Role: models.RoleStudent})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.service.Reschedule(context.Background(), "b1", &models.User{ID: "other-teacher", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestDefenseRescheduleNoSlotLeavesBooking(t *testing.T) {
	f := newDefenseFixture(t)
	defer f.cleanup()
	f.bookings.bookings = []models.Booking{
		{ID: "b1", SubmissionID: "sub1", TeacherID: "t1", DefenseDate: day(2), DefenseTime: "12:00", Occupied: true},
	}
	f.submissions.submissions["sub1"] = models.Submission{ID: "sub1", TaskID: "task1", StudentID: "stu1"}
	f.tasks.tasks["task1"] = models.Task{ID: "task1", CourseID: "c1", ExpectedDefenseMinutes: 45}
	f.windows.windows = []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "12:30"},
	}

	_, err := f.service.Reschedule(context.Background(), "b1", &models.User{ID: "stu1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoSlotAvailable))
	assert.Empty(t, f.bookings.moved)
	assert.Equal(t, "12:00", f.bookings.bookings[0].DefenseTime)
}
