package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type mockTaskRepo struct {
	tasks map[string]*models.Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*models.Task{}}
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	if t, ok := m.tasks[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Task, error) {
	var out []models.Task
	for _, t := range m.tasks {
		if t.CourseID == courseID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *models.Task) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.tasks, id)
	return nil
}

func newTaskService(repo *mockTaskRepo, courses map[string]models.Course) *TaskService {
	return NewTaskService(repo, &mockCourseReader{courses: courses}, nil, nil)
}

func TestTaskServiceCreate(t *testing.T) {
	repo := newMockTaskRepo()
	svc := newTaskService(repo, map[string]models.Course{
		"c1": {ID: "c1", TeacherID: "t1"},
	})

	task, err := svc.Create(context.Background(), "c1", TaskRequest{
		Title:                  "Essay on indexes",
		MinWords:               300,
		Keywords:               "btree,hash",
		ExpectedDefenseMinutes: 15,
	}, teacher("t1"))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "c1", task.CourseID)
	assert.Equal(t, 15, task.ExpectedDefenseMinutes)
}

func TestTaskServiceCreateForeignCourse(t *testing.T) {
	svc := newTaskService(newMockTaskRepo(), map[string]models.Course{
		"c1": {ID: "c1", TeacherID: "t1"},
	})

	_, err := svc.Create(context.Background(), "c1", TaskRequest{Title: "Essay"}, teacher("t2"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestTaskServiceCreateUnknownCourse(t *testing.T) {
	svc := newTaskService(newMockTaskRepo(), map[string]models.Course{})

	_, err := svc.Create(context.Background(), "missing", TaskRequest{Title: "Essay"}, teacher("t1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTaskServiceUpdate(t *testing.T) {
	repo := newMockTaskRepo()
	svc := newTaskService(repo, map[string]models.Course{
		"c1": {ID: "c1", TeacherID: "t1"},
	})

	task, err := svc.Create(context.Background(), "c1", TaskRequest{Title: "Essay", MinWords: 100}, teacher("t1"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), task.ID, TaskRequest{Title: "Essay v2"}, teacher("t2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Update(context.Background(), task.ID, TaskRequest{Title: "Essay v2", MinWords: 200}, teacher("t1"))
	require.NoError(t, err)
	assert.Equal(t, "Essay v2", updated.Title)
	assert.Equal(t, 200, updated.MinWords)
}

func TestTaskServiceDelete(t *testing.T) {
	repo := newMockTaskRepo()
	svc := newTaskService(repo, map[string]models.Course{
		"c1": {ID: "c1", TeacherID: "t1"},
	})

	task, err := svc.Create(context.Background(), "c1", TaskRequest{Title: "Essay"}, teacher("t1"))
	require.NoError(t, err)

	admin := &models.User{ID: "a1", Role: models.RoleAdmin}
	require.NoError(t, svc.Delete(context.Background(), task.ID, admin))

	_, err = svc.Get(context.Background(), task.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
