package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var taskCols = []string{
	"id", "title", "description", "status", "priority", "deadline", "assigned_to", "completed_by",
	"county_id", "created_by", "reminder_frequency", "last_reminder_sent", "created_at", "updated_at",
}

func taskRowValues(id, countyID string, deadline time.Time) []driverValue {
	return []driverValue{
		id, "Budget filing", "", "pending", "medium", deadline, []byte("{main,clerk}"), []byte("{clerk}"),
		countyID, "u1", "Daily", nil, deadline, deadline,
	}
}

type driverValue = driver.Value

func TestTaskRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil).(*taskRepository)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	task := &models.Task{
		Title:             "Budget filing",
		Status:            models.TaskStatusPending,
		Priority:          models.TaskPriorityHigh,
		Deadline:          fixed.Add(48 * time.Hour),
		AssignedTo:        models.StringList{"main"},
		CountyID:          "c1",
		CreatedBy:         "u1",
		ReminderFrequency: models.ReminderDaily,
	}

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(sqlmock.AnyArg(), task.Title, task.Description, task.Status, task.Priority, task.Deadline,
			sqlmock.AnyArg(), "c1", "u1", task.ReminderFrequency, nil, fixed, fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, fixed, task.CreatedAt)
	assert.Equal(t, 1, task.CompletionDetails.TotalAssigned)
}

func TestTaskRepository_CreateForeignKeyViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)

	mock.ExpectExec("INSERT INTO tasks").WillReturnError(&pq.Error{Code: "23503", Message: "county missing"})

	err := repo.Create(context.Background(), &models.Task{Title: "x", CountyID: "nope"})
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestTaskRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)
	deadline := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id = \\$1").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(taskRowValues("t1", "c1", deadline)...))

	task, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, models.StringList{"main", "clerk"}, task.AssignedTo)
	assert.Equal(t, models.CompletionDetails{TotalAssigned: 2, Completed: 1, CompletedBy: []string{"clerk"}}, task.CompletionDetails)
	assert.Nil(t, task.LastReminderSent)
}

func TestTaskRepository_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM tasks").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_ListByCountyUsesCache(t *testing.T) {
	db, mock := newMockDB(t)
	c := cache.NewMemoryCache(cache.RedisConfig{}, nil)
	repo := NewTaskRepository(db, c, nil, nil, nil)
	deadline := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM tasks WHERE county_id = \\$1 ORDER BY created_at").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(taskRowValues("t1", "c1", deadline)...).
			AddRow(taskRowValues("t2", "c1", deadline)...))

	first, err := repo.ListByCounty(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := repo.ListByCounty(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, []string{second[0].ID, second[1].ID})

	mock.ExpectQuery("DELETE FROM tasks").WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"county_id"}).AddRow("c1"))
	require.NoError(t, repo.Delete(context.Background(), "t1"))

	mock.ExpectQuery("FROM tasks WHERE county_id").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(taskRowValues("t2", "c1", deadline)...))
	third, err := repo.ListByCounty(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, third, 1, "delete invalidates the county list")
}

func TestTaskRepository_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)

	mock.ExpectQuery("DELETE FROM tasks").WithArgs("gone").WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, repo.Delete(context.Background(), "gone"), repository.ErrNotFound)
}

func TestTaskRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)
	deadline := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	values := taskRowValues("t1", "c1", deadline)
	values[3] = "completed"
	mock.ExpectQuery("UPDATE tasks SET status = \\$2").
		WithArgs("t1", models.TaskStatusCompleted, "clerk", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(values...))

	task, err := repo.UpdateStatus(context.Background(), "t1", models.TaskStatusCompleted, "clerk")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
}

func TestTaskRepository_ListByAssigneeAndMarkReminder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTaskRepository(db, nil, nil, nil, nil)
	deadline := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE \\$1 = ANY\\(assigned_to\\)").WithArgs("clerk").
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(taskRowValues("t1", "c1", deadline)...))
	tasks, err := repo.ListByAssignee(context.Background(), "clerk")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	mock.ExpectExec("UPDATE tasks SET last_reminder_sent").WithArgs("t1", deadline).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkReminderSent(context.Background(), "t1", deadline), repository.ErrNotFound)
}

func TestCountyRepository_ListAndProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCountyRepository(db, nil, nil, nil)

	mock.ExpectQuery("FROM counties c ORDER BY c.name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "population", "region", "completion_rate", "task_count"}).
			AddRow("c1", "Adams", 1200, "North", 50.0, 3).
			AddRow("c2", "Baker", 800, "South", 0.0, 0))

	counties, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, counties, 2)
	assert.Equal(t, 3, counties[0].TaskCount)
	assert.NotNil(t, counties[1].Tasks)

	mock.ExpectExec("INSERT INTO county_profiles").
		WithArgs("c1", "Adams County", "clerk@adams.gov", "", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertProfile(context.Background(), &models.CountyProfile{
		CountyID: "c1", Name: "Adams County", Email: "clerk@adams.gov",
	}))
}

func TestUserRepository_GetByIDCaches(t *testing.T) {
	db, mock := newMockDB(t)
	c := cache.NewMemoryCache(cache.RedisConfig{}, nil)
	repo := NewUserRepository(db, c, nil, nil, nil)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "organization", "county_id", "password_hash", "created_at"}).
			AddRow("u1", "Ana", "ana@state.gov", "state", "DOF", nil, "hash", created))

	first, err := repo.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	second, err := repo.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "hash", second.PasswordHash)
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, nil, nil, nil, nil)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Create(context.Background(), &models.User{Email: " Ana@State.gov ", Role: models.RoleState})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUserRepository_ListByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, nil, nil, nil, nil)

	mock.ExpectQuery("FROM users WHERE role = ANY\\(\\$1\\)").WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "organization", "county_id", "password_hash", "created_at"}).
			AddRow("u2", "Bo", "bo@adams.gov", "county", "Adams", "c1", "h", time.Now()))

	users, err := repo.List(context.Background(), models.RoleCounty, models.RoleState)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NotNil(t, users[0].CountyID)
	assert.Equal(t, "c1", *users[0].CountyID)
}

func TestObligationRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewObligationRepository(db, nil, nil, nil)
	due := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE obligations SET status").
		WithArgs("o1", models.ObligationCompleted, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "county_id", "law_name", "description", "due_date", "status", "updated_at"}).
			AddRow("o1", "c1", "Open Records Act", "", due, "Completed", due))

	o, err := repo.UpdateStatus(context.Background(), "o1", models.ObligationCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationCompleted, o.Status)
}

func TestFormAndReminderRepositories(t *testing.T) {
	db, mock := newMockDB(t)
	forms := NewFormRepository(db, nil, nil, nil)
	reminders := NewReminderRepository(db, nil, nil, nil)

	mock.ExpectExec("INSERT INTO forms").WillReturnResult(sqlmock.NewResult(0, 1))
	f := &models.Form{CountyID: "c1", Name: "permit.pdf", FileType: models.FileTypePDF, ObjectKey: "forms/c1/x"}
	require.NoError(t, forms.Create(context.Background(), f))
	assert.NotEmpty(t, f.ID)

	mock.ExpectExec("INSERT INTO reminders").WillReturnResult(sqlmock.NewResult(0, 1))
	rem := &models.Reminder{TaskID: "t1", Recipient: "clerk@adams.gov", Subject: "Task Reminder: Audit"}
	require.NoError(t, reminders.Create(context.Background(), rem))
	assert.Equal(t, models.ReminderQueued, rem.Status)

	sent := time.Now()
	mock.ExpectExec("UPDATE reminders SET status = 'sent'").WithArgs(rem.ID, "msg-1", sent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, reminders.MarkSent(context.Background(), rem.ID, "msg-1", sent))
}
