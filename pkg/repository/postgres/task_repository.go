package postgres

import (
	"context"
	"time"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const taskColumns = `id, title, description, status, priority, deadline, assigned_to, completed_by,
	county_id, created_by, reminder_frequency, last_reminder_sent, created_at, updated_at`

// taskRow adds the columns that models.Task keeps outside its flat fields.
type taskRow struct {
	models.Task
	CompletedBy models.StringList `db:"completed_by"`
}

func (r *taskRow) toModel() *models.Task {
	t := r.Task
	t.CompletionDetails = models.CompletionDetails{
		TotalAssigned: len(t.AssignedTo),
		Completed:     len(r.CompletedBy),
		CompletedBy:   []string(r.CompletedBy),
	}
	if t.AssignedTo == nil {
		t.AssignedTo = models.StringList{}
	}
	if t.CompletionDetails.CompletedBy == nil {
		t.CompletionDetails.CompletedBy = []string{}
	}
	return &t
}

func rowsToTasks(rows []taskRow) []*models.Task {
	out := make([]*models.Task, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}

type taskRepository struct {
	*BaseRepository
	now func() time.Time
}

// NewTaskRepository creates a Postgres-backed TaskRepository.
func NewTaskRepository(db *sqlx.DB, c cache.Cache, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) repository.TaskRepository {
	return &taskRepository{
		BaseRepository: NewBaseRepository(db, c, logger, tracer, metrics),
		now:            time.Now,
	}
}

// Create inserts task, assigning an id and timestamps when they are unset.
func (r *taskRepository) Create(ctx context.Context, task *models.Task) (err error) {
	ctx, done := r.begin(ctx, "tasks", "create")
	defer func() { done(err) }()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.AssignedTo == nil {
		task.AssignedTo = models.StringList{}
	}

	query := `INSERT INTO tasks (id, title, description, status, priority, deadline, assigned_to,
		county_id, created_by, reminder_frequency, last_reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority, task.Deadline,
		pq.Array([]string(task.AssignedTo)), task.CountyID, task.CreatedBy, task.ReminderFrequency,
		task.LastReminderSent, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to create task")
	}
	task.CompletionDetails = models.CompletionDetails{TotalAssigned: len(task.AssignedTo), CompletedBy: []string{}}
	r.cacheDelete(ctx, countyTasksKey(task.CountyID))
	return nil
}

// Get retrieves a task by id
func (r *taskRepository) Get(ctx context.Context, id string) (task *models.Task, err error) {
	ctx, done := r.begin(ctx, "tasks", "get")
	defer func() { done(err) }()

	var row taskRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id); err != nil {
		return nil, translateError(err, "failed to get task %s", id)
	}
	return row.toModel(), nil
}

// ListByCounty returns a county's tasks in creation order. The list is
// cached until the next write to that county.
func (r *taskRepository) ListByCounty(ctx context.Context, countyID string) (tasks []*models.Task, err error) {
	ctx, done := r.begin(ctx, "tasks", "list_by_county")
	defer func() { done(err) }()

	if r.cacheGet(ctx, countyTasksKey(countyID), &tasks) {
		return tasks, nil
	}

	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE county_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query, countyID); err != nil {
		return nil, translateError(err, "failed to list tasks for county %s", countyID)
	}
	tasks = rowsToTasks(rows)
	r.cacheSet(ctx, countyTasksKey(countyID), tasks)
	return tasks, nil
}

// ListByAssignee returns tasks whose assigned_to array contains assignee.
func (r *taskRepository) ListByAssignee(ctx context.Context, assignee string) (tasks []*models.Task, err error) {
	ctx, done := r.begin(ctx, "tasks", "list_by_assignee")
	defer func() { done(err) }()

	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE $1 = ANY(assigned_to) ORDER BY deadline, id`
	if err := r.db.SelectContext(ctx, &rows, query, assignee); err != nil {
		return nil, translateError(err, "failed to list tasks for %s", assignee)
	}
	return rowsToTasks(rows), nil
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, completedBy string) (task *models.Task, err error) {
	ctx, done := r.begin(ctx, "tasks", "update_status")
	defer func() { done(err) }()

	query := `UPDATE tasks SET status = $2,
		completed_by = CASE WHEN $3::text = '' OR $3::text = ANY(completed_by) THEN completed_by ELSE array_append(completed_by, $3::text) END,
		updated_at = $4
		WHERE id = $1
		RETURNING ` + taskColumns

	var row taskRow
	if err := r.db.GetContext(ctx, &row, query, id, status, completedBy, r.now().UTC()); err != nil {
		return nil, translateError(err, "failed to update task %s", id)
	}
	task = row.toModel()
	r.cacheDelete(ctx, countyTasksKey(task.CountyID))
	return task, nil
}

// Delete removes the task. Deleting a missing task returns ErrNotFound.
func (r *taskRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, done := r.begin(ctx, "tasks", "delete")
	defer func() { done(err) }()

	var countyID string
	if err := r.db.GetContext(ctx, &countyID, `DELETE FROM tasks WHERE id = $1 RETURNING county_id`, id); err != nil {
		return translateError(err, "failed to delete task %s", id)
	}
	r.cacheDelete(ctx, countyTasksKey(countyID))
	return nil
}

func (r *taskRepository) ListOpen(ctx context.Context) (tasks []*models.Task, err error) {
	ctx, done := r.begin(ctx, "tasks", "list_open")
	defer func() { done(err) }()

	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status <> 'completed' ORDER BY deadline, id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, translateError(err, "failed to list open tasks")
	}
	return rowsToTasks(rows), nil
}

func (r *taskRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (err error) {
	ctx, done := r.begin(ctx, "tasks", "mark_reminder_sent")
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET last_reminder_sent = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translateError(err, "failed to stamp reminder on task %s", id)
	}
	return expectAffected(res)
}

func countyTasksKey(countyID string) string {
	return "county:" + countyID + ":tasks"
}
