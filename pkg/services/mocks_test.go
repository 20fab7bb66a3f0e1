package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/civisight/portal/pkg/models"
)

type mockTaskRepo struct {
	mock.Mock
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	if args.Error(0) == nil && task.ID == "" {
		task.ID = "task-1"
	}
	return args.Error(0)
}

func (m *mockTaskRepo) Get(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskRepo) ListByCounty(ctx context.Context, countyID string) ([]*models.Task, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *mockTaskRepo) ListByAssignee(ctx context.Context, assignee string) ([]*models.Task, error) {
	args := m.Called(ctx, assignee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, completedBy string) (*models.Task, error) {
	args := m.Called(ctx, id, status, completedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockTaskRepo) ListOpen(ctx context.Context) ([]*models.Task, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *mockTaskRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type mockCountyRepo struct {
	mock.Mock
}

func (m *mockCountyRepo) List(ctx context.Context) ([]*models.County, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.County), args.Error(1)
}

func (m *mockCountyRepo) Get(ctx context.Context, id string) (*models.County, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.County), args.Error(1)
}

func (m *mockCountyRepo) Upsert(ctx context.Context, county *models.County) error {
	return m.Called(ctx, county).Error(0)
}

func (m *mockCountyRepo) GetProfile(ctx context.Context, countyID string) (*models.CountyProfile, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CountyProfile), args.Error(1)
}

func (m *mockCountyRepo) UpsertProfile(ctx context.Context, profile *models.CountyProfile) error {
	return m.Called(ctx, profile).Error(0)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) List(ctx context.Context, roles ...models.Role) ([]*models.User, error) {
	args := m.Called(ctx, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type mockObligationRepo struct {
	mock.Mock
}

func (m *mockObligationRepo) Create(ctx context.Context, o *models.Obligation) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockObligationRepo) Get(ctx context.Context, id string) (*models.Obligation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Obligation), args.Error(1)
}

func (m *mockObligationRepo) ListByCounty(ctx context.Context, countyID string) ([]*models.Obligation, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Obligation), args.Error(1)
}

func (m *mockObligationRepo) UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (*models.Obligation, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Obligation), args.Error(1)
}

type mockFormRepo struct {
	mock.Mock
}

func (m *mockFormRepo) Create(ctx context.Context, f *models.Form) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFormRepo) Get(ctx context.Context, id string) (*models.Form, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Form), args.Error(1)
}

func (m *mockFormRepo) ListByCounty(ctx context.Context, countyID string) ([]*models.Form, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Form), args.Error(1)
}

type mockReminderRepo struct {
	mock.Mock
}

func (m *mockReminderRepo) Create(ctx context.Context, r *models.Reminder) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReminderRepo) ListByTask(ctx context.Context, taskID string) ([]*models.Reminder, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reminder), args.Error(1)
}

func (m *mockReminderRepo) MarkSent(ctx context.Context, id, messageID string, at time.Time) error {
	return m.Called(ctx, id, messageID, at).Error(0)
}

func (m *mockReminderRepo) MarkFailed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
