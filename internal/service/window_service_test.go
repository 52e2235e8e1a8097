package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrozd/studentportal-api/internal/models"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

func TestWindowCreate(t *testing.T) {
	repo := &mockWindowRepo{}
	svc := NewWindowService(repo, nil, nil, nil)

	actor := &models.User{ID: "t1", Role: models.RoleTeacher}
	window, err := svc.Create(context.Background(), CreateWindowRequest{
		Date:      "2026-03-02",
		StartTime: "12:00",
		EndTime:   "13:30",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, "t1", window.TeacherID)
	assert.NotEmpty(t, window.ID)
	require.NotNil(t, repo.created)
}

func TestWindowCreateInvalid(t *testing.T) {
	repo := &mockWindowRepo{}
	svc := NewWindowService(repo, nil, nil, nil)
	actor := &models.User{ID: "t1", Role: models.RoleTeacher}

	cases := []CreateWindowRequest{
		{Date: "2026-03-02", StartTime: "13:00", EndTime: "12:00"},
		{Date: "2026-03-02", StartTime: "12:00", EndTime: "12:00"},
		{Date: "2026-03-02", StartTime: "noon", EndTime: "13:00"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req, actor)
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidWindow), "expected InvalidWindow for %+v", req)
	}
	assert.Nil(t, repo.created)
}

func TestWindowCreateTeacherOnly(t *testing.T) {
	svc := NewWindowService(&mockWindowRepo{}, nil, nil, nil)
	req := CreateWindowRequest{Date: "2026-03-02", StartTime: "12:00", EndTime: "13:00"}

	_, err := svc.Create(context.Background(), req, &models.User{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestWindowDeleteOwnership(t *testing.T) {
	repo := &mockWindowRepo{windows: []models.TimeWindow{
		{ID: "w1", TeacherID: "t1", Date: day(2), StartTime: "12:00", EndTime: "13:00"},
	}}
	svc := NewWindowService(repo, nil, nil, nil)

	err := svc.Delete(context.Background(), "w1", &models.User{ID: "t2", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Delete(context.Background(), "w1", &models.User{ID: "t1", Role: models.RoleTeacher}))
	assert.Equal(t, []string{"w1"}, repo.deleted)
}
