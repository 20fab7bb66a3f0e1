package api

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/services"
)

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) Signup(ctx context.Context, req services.SignupRequest) (*auth.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockAccounts) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockAccounts) Me(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAccounts) ListUsers(ctx context.Context, roles ...models.Role) ([]*models.User, error) {
	args := m.Called(ctx, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type mockCounties struct{ mock.Mock }

func (m *mockCounties) List(ctx context.Context) ([]*models.County, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.County), args.Error(1)
}

func (m *mockCounties) Get(ctx context.Context, id string) (*models.County, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.County), args.Error(1)
}

func (m *mockCounties) GetProfile(ctx context.Context, countyID string) (*models.CountyProfile, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CountyProfile), args.Error(1)
}

func (m *mockCounties) UpdateProfile(ctx context.Context, profile *models.CountyProfile) (*models.CountyProfile, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CountyProfile), args.Error(1)
}

type mockTasks struct{ mock.Mock }

func (m *mockTasks) Create(ctx context.Context, draft models.TaskDraft, createdBy *auth.Principal) (*models.Task, error) {
	args := m.Called(ctx, draft, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTasks) Get(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTasks) ListByCounty(ctx context.Context, countyID string) ([]*models.Task, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *mockTasks) ListMine(ctx context.Context, p *auth.Principal) ([]*models.Task, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *mockTasks) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, by *auth.Principal) (*models.Task, error) {
	args := m.Called(ctx, id, status, by)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTasks) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockObligations struct{ mock.Mock }

func (m *mockObligations) ListByCounty(ctx context.Context, countyID string) ([]*models.Obligation, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Obligation), args.Error(1)
}

func (m *mockObligations) UpdateStatus(ctx context.Context, id string, status models.ObligationStatus) (*models.Obligation, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Obligation), args.Error(1)
}

type mockForms struct{ mock.Mock }

func (m *mockForms) ListByCounty(ctx context.Context, countyID string) ([]*models.Form, error) {
	args := m.Called(ctx, countyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Form), args.Error(1)
}

// Upload reads the body so tests can assert on what arrived.
func (m *mockForms) Upload(ctx context.Context, countyID, filename string, body io.Reader, uploadedBy string) (*models.Form, error) {
	data, _ := io.ReadAll(body)
	args := m.Called(ctx, countyID, filename, string(data), uploadedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Form), args.Error(1)
}

func (m *mockForms) Download(ctx context.Context, id string) (*models.Form, []byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Form), args.Get(1).([]byte), args.Error(2)
}

type mockReminders struct{ mock.Mock }

func (m *mockReminders) SendNow(ctx context.Context, taskID string) ([]*models.Reminder, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reminder), args.Error(1)
}

func (m *mockReminders) ListByTask(ctx context.Context, taskID string) ([]*models.Reminder, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reminder), args.Error(1)
}
