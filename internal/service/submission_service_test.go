package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type mockSubmissionRepo struct {
	submissions map[string]models.Submission
	statuses    map[string]models.SubmissionStatus
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	var out []models.Submission
	for _, s := range m.submissions {
		if filter.StudentID != "" && s.StudentID != filter.StudentID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockSubmissionRepo) FindActiveByTaskAndStudent(ctx context.Context, taskID, studentID string) (*models.Submission, error) {
	for _, s := range m.submissions {
		if s.TaskID == taskID && s.StudentID == studentID && s.Status != models.SubmissionStatusRejected {
			found := s
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	if m.submissions == nil {
		m.submissions = make(map[string]models.Submission)
	}
	if submission.ID == "" {
		submission.ID = "new-submission"
	}
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *mockSubmissionRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SubmissionStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.SubmissionStatus)
	}
	m.statuses[id] = status
	if s, ok := m.submissions[id]; ok {
		s.Status = status
		m.submissions[id] = s
	}
	return nil
}

type mockStore struct {
	saved map[string][]byte
}

func (m *mockStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return "uploads/" + filename, nil
}

type mockSigner struct{}

func (m *mockSigner) Generate(fileID, relPath string) (string, time.Time, error) {
	return "signed:" + fileID, time.Now().Add(time.Hour), nil
}

type mockAllocator struct {
	booking *models.Booking
	err     error
	calls   int
}

func (m *mockAllocator) Allocate(ctx context.Context, submission *models.Submission) (*models.Booking, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.booking, nil
}

type submissionFixture struct {
	service   *SubmissionService
	repo      *mockSubmissionRepo
	tasks     *mockTaskReader
	store     *mockStore
	allocator *mockAllocator
	publisher *mockPublisher
}

func newSubmissionFixture() *submissionFixture {
	f := &submissionFixture{
		repo:      &mockSubmissionRepo{},
		tasks:     &mockTaskReader{tasks: map[string]models.Task{}},
		store:     &mockStore{},
		allocator: &mockAllocator{},
		publisher: &mockPublisher{},
	}
	f.service = NewSubmissionService(f.repo, f.tasks, f.store, &mockSigner{}, nil, f.allocator, f.publisher,
		config.UploadsConfig{MaxFileSizeBytes: 1 << 20}, nil)
	return f
}

func passingText() []byte {
	return []byte(strings.Repeat("goroutine channel scheduler ", 10))
}

func TestSubmitQueuesOnPass(t *testing.T) {
	f := newSubmissionFixture()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", CourseID: "c1", MinWords: 10, Keywords: "goroutine"}
	f.allocator.booking = &models.Booking{ID: "b1", DefenseTime: "12:00"}

	result, err := f.service.Submit(context.Background(), "task1", student("s1"), "essay.txt", passingText())
	require.NoError(t, err)
	assert.True(t, result.Check.Passed)
	assert.Equal(t, models.SubmissionStatusInQueue, result.Submission.Status)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "b1", result.Booking.ID)
	assert.Len(t, f.store.saved, 1)
}

func TestSubmitRejectsOnFailedCheck(t *testing.T) {
	f := newSubmissionFixture()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", MinWords: 1000, Keywords: ""}

	result, err := f.service.Submit(context.Background(), "task1", student("s1"), "essay.txt", []byte("too short"))
	require.NoError(t, err)
	assert.False(t, result.Check.Passed)
	assert.Equal(t, models.SubmissionStatusRejected, result.Submission.Status)
	assert.Nil(t, result.Booking)
	assert.Zero(t, f.allocator.calls)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventSubmissionRejected, f.publisher.events[0].Type)
}

func TestSubmitRejectsWhenScheduleExhausted(t *testing.T) {
	f := newSubmissionFixture()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", MinWords: 1, Keywords: ""}
	f.allocator.err = appErrors.Clone(appErrors.ErrNoSlotAvailable, "no free defense slot available")

	result, err := f.service.Submit(context.Background(), "task1", student("s1"), "essay.txt", passingText())
	require.NoError(t, err)
	assert.True(t, result.Check.Passed)
	assert.Equal(t, models.SubmissionStatusRejected, result.Submission.Status)
	assert.Nil(t, result.Booking)
}

func TestSubmitDuplicateActiveSubmission(t *testing.T) {
	f := newSubmissionFixture()
	f.tasks.tasks["task1"] = models.Task{ID: "task1", MinWords: 1}
	f.repo.submissions = map[string]models.Submission{
		"existing": {ID: "existing", TaskID: "task1", StudentID: "s1", Status: models.SubmissionStatusInQueue},
	}

	_, err := f.service.Submit(context.Background(), "task1", student("s1"), "essay.txt", passingText())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestSubmitStudentsOnly(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.service.Submit(context.Background(), "task1", &models.User{ID: "t1", Role: models.RoleTeacher}, "essay.txt", passingText())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestSubmissionGetOwnership(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.submissions = map[string]models.Submission{
		"sub1": {ID: "sub1", StudentID: "s1"},
	}

	_, err := f.service.Get(context.Background(), "sub1", student("s2"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	got, err := f.service.Get(context.Background(), "sub1", student("s1"))
	require.NoError(t, err)
	assert.Equal(t, "sub1", got.ID)
}
